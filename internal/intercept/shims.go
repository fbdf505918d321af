package intercept

import (
	"github.com/seec-team/seectrace/internal/checker"
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/pointerobj"
	"github.com/seec-team/seectrace/internal/rterror"
)

// Each shim below follows the original SimpleWrapper's eight steps: check
// inputs, call the real function (passed in by whoever dispatches on the
// detectcalls.Call identifier NotifyPreCall returned), notify the result,
// record outputs. real is the actual libc implementation for this call —
// resolved and supplied by the collaborator that loaded the traced
// program's dynamic symbol table (out of scope here, per §1).

// Malloc wraps malloc(size): a fresh allocation is registered and its
// address is returned, tagged with a new temporal identity. A real
// allocation failure (a null return) is not a tracer-detected error.
func Malloc(env *Env, real func(size uint64) uint64, size uint64) (uint64, *rterror.Error) {
	var result uint64
	rerr := Do(env, AcquireDynamicMemoryLock, nil, func() *rterror.Error {
		result = real(size)
		if result == 0 {
			return nil
		}
		alloc, err := env.Thread.Mem.AddAllocation(dsa.NewMemoryArea(result, size))
		if err != nil {
			return rterror.New(rterror.KindMemoryOverlap, env.InstructionIndex, rterror.Address(result), rterror.Size(size))
		}
		tag := pointerobj.Mint(result, alloc.TemporalID())
		env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, result, tag)
		return nil
	})
	return result, rerr
}

// Calloc wraps calloc(nmemb, size): like Malloc, but the returned region is
// zero-filled by the real function and so is recorded fully initialized.
func Calloc(env *Env, real func(nmemb, size uint64) uint64, nmemb, size uint64) (uint64, *rterror.Error) {
	total := nmemb * size
	var result uint64
	rerr := Do(env, AcquireDynamicMemoryLock, nil, func() *rterror.Error {
		result = real(nmemb, size)
		if result == 0 {
			return nil
		}
		alloc, err := env.Thread.Mem.AddAllocation(dsa.NewMemoryArea(result, total))
		if err != nil {
			return rterror.New(rterror.KindMemoryOverlap, env.InstructionIndex, rterror.Address(result), rterror.Size(total))
		}
		env.Thread.Mem.SetInitialized(result, total)
		tag := pointerobj.Mint(result, alloc.TemporalID())
		env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, result, tag)
		return nil
	})
	return result, rerr
}

// Realloc wraps realloc(addr, size). addr must be either null or the base
// address of a live allocation this tracer already knows about; the old
// allocation is removed (and its pointer tags cleared) once the real call
// has succeeded, since the original addr is no longer valid either way —
// realloc frees it whether or not it returns the same address.
func Realloc(env *Env, real func(addr, size uint64) uint64, addr, size uint64) (uint64, *rterror.Error) {
	var result uint64
	rerr := Do(env, AcquireDynamicMemoryLock, nil, func() *rterror.Error {
		var oldLen uint64
		if addr != 0 {
			alloc, ok := env.Thread.Mem.FindAllocationContaining(addr)
			if !ok || alloc.Area().Address() != addr {
				return rterror.New(rterror.KindMemoryUnowned, env.InstructionIndex, rterror.Address(addr))
			}
			oldLen = alloc.Area().Length()
		}

		result = real(addr, size)
		if result == 0 {
			return nil
		}

		if addr != 0 {
			env.Thread.Mem.RemoveAllocation(addr)
			env.Thread.Pointers.ClearRange(addr, oldLen)
		}
		alloc, err := env.Thread.Mem.AddAllocation(dsa.NewMemoryArea(result, size))
		if err != nil {
			return rterror.New(rterror.KindMemoryOverlap, env.InstructionIndex, rterror.Address(result), rterror.Size(size))
		}
		tag := pointerobj.Mint(result, alloc.TemporalID())
		env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, result, tag)
		return nil
	})
	return result, rerr
}

// Free wraps free(addr). free(NULL) is a defined no-op; any other address
// not currently owned by a live allocation is a tracer-detected error.
func Free(env *Env, real func(addr uint64), addr uint64) *rterror.Error {
	return Do(env, AcquireDynamicMemoryLock, nil, func() *rterror.Error {
		if addr == 0 {
			real(addr)
			return nil
		}
		alloc, ok := env.Thread.Mem.FindAllocationContaining(addr)
		if !ok || alloc.Area().Address() != addr {
			return rterror.New(rterror.KindMemoryUnowned, env.InstructionIndex, rterror.Address(addr))
		}
		length := alloc.Area().Length()
		real(addr)
		env.Thread.Mem.RemoveAllocation(addr)
		env.Thread.Pointers.ClearRange(addr, length)
		return nil
	})
}

// Memcpy wraps memcpy(dst, src, n), reusing the thread listener's
// llvm.memcpy intrinsic handling — a library call to memcpy and a compiler
// -emitted memcpy intrinsic need exactly the same checks and shadow-state
// update. dstTag is the pointer tag already associated with the dst
// argument the caller resolved, forwarded unchanged since memcpy returns
// dst itself.
func Memcpy(env *Env, dst, src, n uint64, dstTag pointerobj.Target) (uint64, *rterror.Error) {
	rerr := env.Thread.NotifyPreCallIntrinsicMemcpy(env.InstructionIndex, dst, src, n)
	if rerr != nil && rerr.IsFatal() {
		return 0, rerr
	}
	env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, dst, dstTag)
	return dst, rerr
}

// Memset wraps memset(dst, _, n), reusing the llvm.memset intrinsic
// handling the same way Memcpy reuses the memcpy intrinsic path.
func Memset(env *Env, dst uint64, n uint64, dstTag pointerobj.Target) (uint64, *rterror.Error) {
	rerr := env.Thread.NotifyPreCallIntrinsicMemset(env.InstructionIndex, dst, n)
	if rerr != nil && rerr.IsFatal() {
		return 0, rerr
	}
	env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, dst, dstTag)
	return dst, rerr
}

// Strlen wraps strlen(s): the argument must be a valid NUL-terminated
// string; the returned length excludes the terminator counted by
// CheckCStringRead.
func Strlen(env *Env, real func(s uint64) uint64, s uint64) (uint64, *rterror.Error) {
	args := []WrappedArg{InputCString{Addr: s}}
	var result uint64
	rerr := Do(env, AcquireGlobalMemoryReadLock, args, func() *rterror.Error {
		result = real(s)
		env.Thread.NotifyValueInt(env.Fn, env.InstructionIndex, result, 64)
		return nil
	})
	return result, rerr
}

// Strcpy wraps strcpy(dst, src): src must be a valid C string; dst must
// have room for every byte src's checked length includes (the terminator).
// dstTag is forwarded to the result the same way Memcpy forwards it.
func Strcpy(env *Env, real func(dst, src uint64) uint64, dst, src uint64, dstTag pointerobj.Target) (uint64, *rterror.Error) {
	var n uint64
	rerr := Do(env, AcquireGlobalMemoryWriteLock, nil, func() *rterror.Error {
		var cerr *rterror.Error
		n, cerr = env.Checker.CheckCStringRead(env.Reader, src, 1)
		if cerr != nil {
			return cerr
		}
		if cerr := env.Checker.CheckMemoryAccessForParameter(dst, n, checker.AccessWrite, 0); cerr != nil {
			return cerr
		}
		real(dst, src)
		env.Thread.Mem.SetInitialized(dst, n)
		env.Thread.Pointers.ClearRange(dst, n)
		env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, dst, dstTag)
		return nil
	})
	return dst, rerr
}

// Strncpy wraps strncpy(dst, src, limit): src is read up to limit bytes
// (not necessarily NUL-terminated within that bound); dst always receives
// exactly limit bytes, padded with NUL past src's terminator.
func Strncpy(env *Env, real func(dst, src, limit uint64) uint64, dst, src, limit uint64, dstTag pointerobj.Target) (uint64, *rterror.Error) {
	args := []WrappedArg{
		OutputPointer{Addr: dst, Size: limit},
		LimitedInputCString{Addr: src, Limit: limit},
	}
	rerr := Do(env, AcquireGlobalMemoryWriteLock, args, func() *rterror.Error {
		real(dst, src, limit)
		env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, dst, dstTag)
		return nil
	})
	return dst, rerr
}

// Fopen wraps fopen(path, mode): both arguments are C strings; a successful
// (non-null) return is registered as an open stream.
func Fopen(env *Env, real func(path, mode uint64) uint64, path, mode uint64) (uint64, *rterror.Error) {
	args := []WrappedArg{InputCString{Addr: path}, InputCString{Addr: mode}}
	var result uint64
	rerr := Do(env, 0, args, func() *rterror.Error {
		result = real(path, mode)
		if result != 0 && env.Thread.Streams != nil {
			env.Thread.Streams.Register(result)
		}
		env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, result, pointerobj.Forever(result))
		return nil
	})
	return result, rerr
}

// Fclose wraps fclose(stream): stream must currently be open. The stream
// is always unregistered, whether or not the real call reports failure —
// the file descriptor is no longer usable either way.
func Fclose(env *Env, real func(stream uint64) uint64, stream uint64) (uint64, *rterror.Error) {
	args := []WrappedArg{InputStream{Addr: stream}}
	var result uint64
	rerr := Do(env, 0, args, func() *rterror.Error {
		result = real(stream)
		if env.Thread.Streams != nil {
			env.Thread.Streams.Unregister(stream)
		}
		env.Thread.NotifyValueInt(env.Fn, env.InstructionIndex, result, 32)
		return nil
	})
	return result, rerr
}

// Fread wraps fread(ptr, size, nmemb, stream): ptr receives up to
// size*nmemb bytes; only the bytes actually read (the returned count times
// size) are marked initialized, matching a short read leaving the rest of
// the buffer in whatever state it was in before the call.
func Fread(env *Env, real func(ptr, size, nmemb, stream uint64) uint64, ptr, size, nmemb, stream uint64) (uint64, *rterror.Error) {
	total := size * nmemb
	args := []WrappedArg{
		Scalar{},
		Scalar{},
		Scalar{},
		InputStream{Addr: stream},
	}
	var result uint64
	rerr := Do(env, 0, args, func() *rterror.Error {
		if cerr := env.Checker.CheckMemoryAccessForParameter(ptr, total, checker.AccessWrite, 0); cerr != nil {
			return cerr
		}
		result = real(ptr, size, nmemb, stream)
		if read := result * size; read > 0 {
			env.Thread.Mem.SetInitialized(ptr, read)
			env.Thread.Pointers.ClearRange(ptr, read)
		}
		env.Thread.NotifyValueInt(env.Fn, env.InstructionIndex, result, 64)
		return nil
	})
	return result, rerr
}

// Fwrite wraps fwrite(ptr, size, nmemb, stream): ptr must already be
// initialized for size*nmemb bytes before the write is allowed.
func Fwrite(env *Env, real func(ptr, size, nmemb, stream uint64) uint64, ptr, size, nmemb, stream uint64) (uint64, *rterror.Error) {
	args := []WrappedArg{
		InputPointer{Addr: ptr, Size: size * nmemb},
		Scalar{},
		Scalar{},
		InputStream{Addr: stream},
	}
	var result uint64
	rerr := Do(env, 0, args, func() *rterror.Error {
		result = real(ptr, size, nmemb, stream)
		env.Thread.NotifyValueInt(env.Fn, env.InstructionIndex, result, 64)
		return nil
	})
	return result, rerr
}

// Opendir wraps opendir(path): path is a C string; a successful return is
// registered as an open directory stream.
func Opendir(env *Env, real func(path uint64) uint64, path uint64) (uint64, *rterror.Error) {
	args := []WrappedArg{InputCString{Addr: path}}
	var result uint64
	rerr := Do(env, 0, args, func() *rterror.Error {
		result = real(path)
		if result != 0 && env.Thread.Dirs != nil {
			env.Thread.Dirs.Register(result)
		}
		env.Thread.NotifyValuePointer(env.Fn, env.InstructionIndex, result, pointerobj.Forever(result))
		return nil
	})
	return result, rerr
}

// Closedir wraps closedir(dir): dir must currently be open, and is always
// unregistered after the call regardless of its reported result.
func Closedir(env *Env, real func(dir uint64) uint64, dir uint64) (uint64, *rterror.Error) {
	args := []WrappedArg{InputDir{Addr: dir}}
	var result uint64
	rerr := Do(env, 0, args, func() *rterror.Error {
		result = real(dir)
		if env.Thread.Dirs != nil {
			env.Thread.Dirs.Unregister(dir)
		}
		env.Thread.NotifyValueInt(env.Fn, env.InstructionIndex, result, 32)
		return nil
	})
	return result, rerr
}
