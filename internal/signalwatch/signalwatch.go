// Package signalwatch implements the tracer's signal handling (§5/§6):
// terminating signals are caught, recorded as a SignalInfo block naming the
// signal and the current thread's ID and thread time, and then re-raised
// with the default action so the traced program terminates exactly as it
// would have without the tracer attached.
package signalwatch

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/traceformat"
)

// Watched is the set of terminating signals this tracer catches. It
// excludes SIGKILL and SIGSTOP, which the kernel never delivers to a
// process's handler, and SIGCHLD/SIGWINCH-class signals that do not
// terminate a process by default.
var Watched = []syscall.Signal{
	syscall.Signal(unix.SIGHUP),
	syscall.Signal(unix.SIGINT),
	syscall.Signal(unix.SIGQUIT),
	syscall.Signal(unix.SIGILL),
	syscall.Signal(unix.SIGABRT),
	syscall.Signal(unix.SIGFPE),
	syscall.Signal(unix.SIGSEGV),
	syscall.Signal(unix.SIGPIPE),
	syscall.Signal(unix.SIGALRM),
	syscall.Signal(unix.SIGTERM),
	syscall.Signal(unix.SIGBUS),
}

var descriptions = map[syscall.Signal]string{
	syscall.Signal(unix.SIGHUP):  "hangup",
	syscall.Signal(unix.SIGINT):  "interrupt",
	syscall.Signal(unix.SIGQUIT): "quit",
	syscall.Signal(unix.SIGILL):  "illegal instruction",
	syscall.Signal(unix.SIGABRT): "aborted",
	syscall.Signal(unix.SIGFPE):  "floating point exception",
	syscall.Signal(unix.SIGSEGV): "segmentation fault",
	syscall.Signal(unix.SIGPIPE): "broken pipe",
	syscall.Signal(unix.SIGALRM): "alarm clock",
	syscall.Signal(unix.SIGTERM): "terminated",
	syscall.Signal(unix.SIGBUS):  "bus error",
}

// Describe returns sig's name (as os/signal formats it) and a short
// human-readable description, for the SignalInfo block's payload.
func Describe(sig syscall.Signal) (name, description string) {
	name = sig.String()
	if d, ok := descriptions[sig]; ok {
		return name, d
	}
	return name, "unknown signal"
}

// Event is the information recorded for one caught signal.
type Event struct {
	ThreadID    uint32
	ThreadTime  uint64
	Signal      syscall.Signal
	Name        string
	Description string
}

// Watcher catches every signal in Watched, invokes OnCaught once per
// signal, and then re-raises it with the default disposition so the
// traced process terminates the way it would have unwatched.
type Watcher struct {
	// CurrentThread resolves the thread ID and thread time to attribute a
	// caught signal to — typically whichever thread most recently made a
	// notification call.
	CurrentThread func() (threadID uint32, threadTime uint64)
	// OnCaught is invoked with the recorded Event before the signal is
	// re-raised.
	OnCaught func(Event)

	ch   chan os.Signal
	done chan struct{}
}

// NewWatcher returns a Watcher that is not yet listening; call Start to
// begin catching signals.
func NewWatcher(currentThread func() (uint32, uint64), onCaught func(Event)) *Watcher {
	return &Watcher{CurrentThread: currentThread, OnCaught: onCaught}
}

// Start begins catching every signal in Watched on a background
// goroutine. Calling Start twice on the same Watcher is an error.
func (w *Watcher) Start() {
	w.ch = make(chan os.Signal, len(Watched))
	w.done = make(chan struct{})

	notified := make([]os.Signal, len(Watched))
	for i, s := range Watched {
		notified[i] = s
	}
	signal.Notify(w.ch, notified...)

	go w.run()
}

// Stop stops catching signals and releases the watcher's goroutine.
func (w *Watcher) Stop() {
	signal.Stop(w.ch)
	close(w.done)
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case sig := <-w.ch:
			w.handle(sig)
		}
	}
}

func (w *Watcher) handle(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}

	var threadID uint32
	var threadTime uint64
	if w.CurrentThread != nil {
		threadID, threadTime = w.CurrentThread()
	}
	name, description := Describe(s)
	event := Event{ThreadID: threadID, ThreadTime: threadTime, Signal: s, Name: name, Description: description}
	if w.OnCaught != nil {
		w.OnCaught(event)
	}

	w.reraiseDefault(s)
}

// reraiseDefault restores the signal's default disposition and re-sends it
// to this process, so the kernel applies the default action (usually
// terminating the process) exactly as if this tracer had never installed
// a handler.
func (w *Watcher) reraiseDefault(sig syscall.Signal) {
	signal.Reset(sig)
	unix.Kill(unix.Getpid(), sig)
}

// WriteSignalInfo builds and flushes the SignalInfo block for event (§6):
// thread ID, thread time, signal number, signal name, signal description.
func WriteSignalInfo(alloc *blockio.Allocator, event Event) (int64, error) {
	b := blockio.NewBuilder(traceformat.BlockSignalInfo)

	if err := binary.Write(b, binary.LittleEndian, event.ThreadID); err != nil {
		return 0, fmt.Errorf("signalwatch: write thread ID: %w", err)
	}
	if err := binary.Write(b, binary.LittleEndian, event.ThreadTime); err != nil {
		return 0, fmt.Errorf("signalwatch: write thread time: %w", err)
	}
	if err := binary.Write(b, binary.LittleEndian, uint32(event.Signal)); err != nil {
		return 0, fmt.Errorf("signalwatch: write signal number: %w", err)
	}
	if err := writeLengthPrefixedString(b, event.Name); err != nil {
		return 0, fmt.Errorf("signalwatch: write signal name: %w", err)
	}
	if err := writeLengthPrefixedString(b, event.Description); err != nil {
		return 0, fmt.Errorf("signalwatch: write signal description: %w", err)
	}

	start, err := b.Flush(alloc)
	if err != nil {
		return 0, fmt.Errorf("signalwatch: flush SignalInfo block: %w", err)
	}
	return start, nil
}

func writeLengthPrefixedString(w *blockio.Builder, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}
