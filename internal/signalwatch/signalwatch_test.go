package signalwatch_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/signalwatch"
	"github.com/seec-team/seectrace/internal/traceformat"
)

func TestDescribeKnownSignal(t *testing.T) {
	name, description := signalwatch.Describe(syscall.SIGTERM)
	if name == "" {
		t.Error("Describe should return a non-empty name for SIGTERM")
	}
	if description != "terminated" {
		t.Errorf("description = %q, want %q", description, "terminated")
	}
}

func TestDescribeUnknownSignal(t *testing.T) {
	_, description := signalwatch.Describe(syscall.Signal(64))
	if description != "unknown signal" {
		t.Errorf("description = %q, want %q", description, "unknown signal")
	}
}

func TestWatcherCatchesAndReraises(t *testing.T) {
	caught := make(chan signalwatch.Event, 1)
	w := signalwatch.NewWatcher(
		func() (uint32, uint64) { return 7, 1234 },
		func(e signalwatch.Event) { caught <- e },
	)
	w.Start()
	defer w.Stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case e := <-caught:
		if e.ThreadID != 7 || e.ThreadTime != 1234 {
			t.Errorf("event = %+v, want ThreadID=7 ThreadTime=1234", e)
		}
		if e.Signal != syscall.SIGHUP {
			t.Errorf("Signal = %v, want SIGHUP", e.Signal)
		}
		if e.Name == "" || e.Description == "" {
			t.Error("Name and Description should both be populated")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the watcher to catch SIGHUP")
	}
}

func TestWriteSignalInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.seec")
	alloc, err := blockio.NewAllocator(path)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	defer alloc.Close()

	event := signalwatch.Event{
		ThreadID:    3,
		ThreadTime:  99,
		Signal:      syscall.SIGSEGV,
		Name:        "segmentation violation",
		Description: "segmentation fault",
	}
	if _, err := signalwatch.WriteSignalInfo(alloc, event); err != nil {
		t.Fatalf("WriteSignalInfo: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	headerStart := len(traceformat.Magic)
	if traceformat.BlockType(data[headerStart]) != traceformat.BlockSignalInfo {
		t.Fatalf("block type = %v, want BlockSignalInfo", traceformat.BlockType(data[headerStart]))
	}

	payload := data[headerStart+traceformat.BlockHeaderSize:]
	gotThreadID := binary.LittleEndian.Uint32(payload[0:4])
	gotThreadTime := binary.LittleEndian.Uint64(payload[4:12])
	gotSignal := binary.LittleEndian.Uint32(payload[12:16])
	if gotThreadID != 3 || gotThreadTime != 99 || gotSignal != uint32(syscall.SIGSEGV) {
		t.Errorf("got threadID=%d threadTime=%d signal=%d, want 3 99 %d", gotThreadID, gotThreadTime, gotSignal, syscall.SIGSEGV)
	}
}
