// Package collab declares the interfaces this module consumes from, or
// exposes to, the collaborators that stay outside its scope (§1): the
// compile-time instrumentation pass that emits notification calls, the
// offline viewer that reads a finished trace, the ICU-backed message
// resource loader, wxWidgets' virtual-filesystem handlers, the LLVM
// bitcode reader used for self-description, clang's AST helpers, and the
// linker wrapper tool. None of these are implemented here; this package
// only names the shape the tracing core expects of them, the way a small
// interface lets the teacher's agent swap a real gRPC transport for a test
// double without either side needing to know about the other's internals.
package collab

import (
	"context"
	"io"
)

// InstrumentationEmitter is the compile-time instrumentation pass: given a
// module, it rewrites it to call the runtime notification API (spec.md §6,
// "Runtime notification API") at every function begin/end, load/store,
// call, alloca, divide, and value-update point. This module never performs
// that rewrite itself — the notification surface it implements
// (threadlistener, processlistener) is what such a rewritten module would
// call into.
type InstrumentationEmitter interface {
	// Instrument rewrites the bitcode read from src, writing the
	// instrumented module to dst. It reports the number of call sites
	// instrumented.
	Instrument(ctx context.Context, src io.Reader, dst io.Writer) (sitesInstrumented int, err error)
}

// TraceReader is the offline viewer's entry point: given a finished trace
// file, it walks the block chain (P8, block-chain self-description) and
// replays every thread's event stream. This module only writes traces;
// `cmd/seectrace-selftest` implements a narrow diagnostic subset of this
// (block-chain validation and a summary dump), not full replay.
type TraceReader interface {
	// Open validates path's magic and block-chain structure and returns a
	// handle ready for replay.
	Open(path string) (TraceHandle, error)
}

// TraceHandle is a trace file opened for replay.
type TraceHandle interface {
	io.Closer
	// ModuleIdentifier returns the ProcessTrace block's recorded module
	// identifier string.
	ModuleIdentifier() (string, error)
	// ThreadIDs returns every thread ID with a ThreadEvents block.
	ThreadIDs() ([]uint32, error)
}

// MessageLoader resolves a runtime-error kind or a UI string to localized,
// human-readable text, the role ICU's message catalog plays in the
// original. The tracing core never needs localized text itself — only
// rterror.Kind identifiers and machine-readable Arg values — so this
// interface exists purely for a viewer built against this module's trace
// output.
type MessageLoader interface {
	// Message returns the localized text for key, formatted with args.
	Message(key string, args ...any) (string, error)
}

// VirtualFilesystem is the shape wxWidgets' virtual-filesystem handlers
// give the offline viewer for browsing into a trace archive (e.g. an
// archived trace directory written by the archive-on-close feature) as if
// it were a regular directory tree.
type VirtualFilesystem interface {
	Open(name string) (io.ReadCloser, error)
	ReadDir(name string) ([]string, error)
}

// BitcodeReader is the LLVM bitcode reader used for a trace's
// self-description: resolving a ModuleBitcode block's raw bytes back into
// enough structure (function and global indices, types) to drive replay
// and the value store's layout decisions. The tracing core writes opaque
// bitcode bytes (`traceformat.BlockModuleBitcode`) without parsing them
// itself; only a replay-side consumer needs this.
type BitcodeReader interface {
	ReadModule(bitcode []byte) (ModuleInfo, error)
}

// ModuleInfo is the minimal module-level information a BitcodeReader
// resolves: how many functions and globals the module declares, used to
// size the address tables processlistener.ProcessListener tracks.
type ModuleInfo interface {
	FunctionCount() uint32
	GlobalVariableCount() uint32
}

// ASTHelper is clang's AST-querying support, used by the compile-time
// instrumentation pass to recover source-level names and locations for
// LLVM IR constructs. Nothing in this module needs source-level
// information — it operates entirely on the already-instrumented,
// already-compiled program — so this interface is a placeholder naming the
// collaborator rather than a consumed dependency.
type ASTHelper interface {
	SourceLocation(irValueID uint64) (file string, line, column uint32, ok bool)
}

// LinkerWrapper stands in for the linker wrapper tool that arranges for the
// instrumented module's notification calls to resolve against this
// module's runtime (the functions `internal/threadlistener` and
// `internal/processlistener` expose as C-ABI entry points for the
// instrumentation pass to call). It is invoked as an external process, not
// a Go dependency, so its only interface here is the argument shape it
// needs.
type LinkerWrapper interface {
	Link(ctx context.Context, objectFiles []string, runtimeArchive string, output string) error
}
