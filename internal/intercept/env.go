// Package intercept implements the library-call interception framework
// (§4.11): the shim layer standing between an instrumented call to a
// recognized C standard library function (§4.7's detectcalls.Lookup) and
// the real function, running the same check/call/record sequence the
// original runtime's SimpleWrapper template ran for every wrapped
// function — validate each input argument, invoke the real implementation,
// notify the thread listener of its result, then record the state any
// output argument produced.
package intercept

import (
	"github.com/seec-team/seectrace/internal/checker"
	"github.com/seec-team/seectrace/internal/rterror"
	"github.com/seec-team/seectrace/internal/threadlistener"
)

// Settings mirrors the original SimpleWrapperSetting flags, naming which
// shared state categories a wrapped call touches. The Go port collapses
// all three onto a single process-wide lock (ThreadListener.InterceptLock,
// shared by every thread of one process): this tracer has never needed to
// distinguish "global" memory from "dynamic" (heap) memory at lock
// granularity, since both live in the same shadowmem.State. Settings is
// kept as a bitmask so a shim's declaration still documents which
// categories of state it touches, even though that no longer selects
// between different underlying mutexes.
type Settings uint8

const (
	AcquireGlobalMemoryReadLock Settings = 1 << iota
	AcquireGlobalMemoryWriteLock
	AcquireDynamicMemoryLock
)

// Env bundles the per-call state a wrapped function's shim needs: the
// calling thread and function (for result notification), a checker scoped
// to this call's function name and instruction index, and — when the
// thread listener carries them — the stream and directory tables fopen/
// opendir-family shims validate FILE*/DIR* arguments against.
type Env struct {
	Thread           *threadlistener.ThreadListener
	Fn               *threadlistener.TracedFunction
	InstructionIndex uint32

	Checker *checker.CStdLibChecker
	CIO     *checker.CIOChecker
	DIR     *checker.DIRChecker
	Reader  checker.MemoryReader
}

// NewEnv returns an Env for one call to functionName, at instructionIndex
// in fn, made on thread th. CIO and DIR are populated only if th carries
// the corresponding table (set post-construction by whoever wires up the
// process's threads — see threadlistener.ThreadListener.Streams/Dirs).
func NewEnv(th *threadlistener.ThreadListener, fn *threadlistener.TracedFunction, instructionIndex uint32, functionName string) *Env {
	base := checker.New(th.Mem, instructionIndex)
	c := checker.NewCStdLibChecker(base, functionName)

	env := &Env{
		Thread:           th,
		Fn:               fn,
		InstructionIndex: instructionIndex,
		Checker:          c,
		Reader:           th.Reader,
	}
	if th.Streams != nil {
		env.CIO = checker.NewCIOChecker(c, th.Streams)
	}
	if th.Dirs != nil {
		env.DIR = checker.NewDIRChecker(c, th.Dirs)
	}
	return env
}

// WrappedArg is one library call's argument, in the role it plays for
// checking and recording — the Go port's equivalent of the original's
// per-type WrappedArgumentChecker/WrappedArgumentRecorder specializations,
// dispatched here through an interface's method set rather than reflection
// or a type switch over every call site.
type WrappedArg interface {
	// Check validates the argument, identified as parameter paramIndex in
	// any resulting error, before the real function is called.
	Check(env *Env, paramIndex int) *rterror.Error
	// Record updates shadow state for the argument after the real function
	// has run, given whether the call succeeded.
	Record(env *Env, success bool)
}

// Scalar wraps a plain value argument (an integer or unchecked pointer):
// the base case of WrappedArgumentChecker/WrappedArgumentRecorder, which
// always passes and never records.
type Scalar struct{}

func (Scalar) Check(*Env, int) *rterror.Error { return nil }
func (Scalar) Record(*Env, bool)               {}

// InputPointer wraps a pointer argument the wrapped function only reads,
// covering Size bytes.
type InputPointer struct {
	Addr uint64
	Size uint64
}

func (p InputPointer) Check(env *Env, paramIndex int) *rterror.Error {
	return env.Checker.CheckMemoryAccessForParameter(p.Addr, p.Size, checker.AccessRead, uint32(paramIndex))
}
func (InputPointer) Record(*Env, bool) {}

// OutputPointer wraps a pointer argument the wrapped function writes,
// covering Size bytes. On success, the written range is marked
// initialized — the Go port's form of the original's recordUntypedState.
type OutputPointer struct {
	Addr uint64
	Size uint64
}

func (p OutputPointer) Check(env *Env, paramIndex int) *rterror.Error {
	return env.Checker.CheckMemoryAccessForParameter(p.Addr, p.Size, checker.AccessWrite, uint32(paramIndex))
}
func (p OutputPointer) Record(env *Env, success bool) {
	if !success {
		return
	}
	env.Thread.Mem.SetInitialized(p.Addr, p.Size)
	env.Thread.Pointers.ClearRange(p.Addr, p.Size)
}

// InputCString wraps a NUL-terminated string argument read in full.
type InputCString struct {
	Addr uint64
}

func (s InputCString) Check(env *Env, paramIndex int) *rterror.Error {
	_, rerr := env.Checker.CheckCStringRead(env.Reader, s.Addr, uint32(paramIndex))
	return rerr
}
func (InputCString) Record(*Env, bool) {}

// LimitedInputCString wraps a string argument bounded by an explicit byte
// Limit, for strncpy/strncat/snprintf-family source arguments.
type LimitedInputCString struct {
	Addr  uint64
	Limit uint64
}

func (s LimitedInputCString) Check(env *Env, paramIndex int) *rterror.Error {
	_, rerr := env.Checker.CheckLimitedCStringRead(env.Reader, s.Addr, s.Limit, uint32(paramIndex))
	return rerr
}
func (LimitedInputCString) Record(*Env, bool) {}

// InputStream wraps a FILE* argument that must already be open.
type InputStream struct {
	Addr uint64
}

func (s InputStream) Check(env *Env, paramIndex int) *rterror.Error {
	if env.CIO == nil {
		return nil
	}
	return env.CIO.CheckStream(s.Addr, uint32(paramIndex))
}
func (InputStream) Record(*Env, bool) {}

// InputDir wraps a DIR* argument that must already be open.
type InputDir struct {
	Addr uint64
}

func (d InputDir) Check(env *Env, paramIndex int) *rterror.Error {
	if env.DIR == nil {
		return nil
	}
	return env.DIR.CheckDir(d.Addr, uint32(paramIndex))
}
func (InputDir) Record(*Env, bool) {}

// checkArgs runs every argument's Check against env, in parameter order,
// stopping at (and returning) the first failure. A Go port treats a failed
// check as aborting the call outright — unlike the original's assertion,
// which only fires once every check has already run — since there is no
// value in calling a real libc function with an argument this tracer has
// already shown is invalid.
func checkArgs(env *Env, args []WrappedArg) *rterror.Error {
	for i, a := range args {
		if rerr := a.Check(env, i); rerr != nil {
			return rerr
		}
	}
	return nil
}

// recordArgs runs every argument's Record against env.
func recordArgs(env *Env, args []WrappedArg, success bool) {
	for _, a := range args {
		a.Record(env, success)
	}
}

// Do runs one wrapped library call's full check/call/record sequence
// (§4.11 steps 1-8): acquire the lock settings names, check every
// argument, run body (which calls the real function, decides success, and
// notifies the listener of the result), record every argument's state
// given that success, and record any error either phase raised.
func Do(env *Env, settings Settings, args []WrappedArg, body func() *rterror.Error) *rterror.Error {
	if settings != 0 && env.Thread.InterceptLock != nil {
		env.Thread.InterceptLock.Lock()
		defer env.Thread.InterceptLock.Unlock()
	}

	if rerr := checkArgs(env, args); rerr != nil {
		return env.Thread.RecordRuntimeError(rerr)
	}

	rerr := body()
	recordArgs(env, args, rerr == nil)

	if rerr != nil {
		return env.Thread.RecordRuntimeError(rerr)
	}
	return nil
}
