package checker

import (
	"strings"

	"github.com/seec-team/seectrace/internal/rterror"
)

// CStdLibChecker layers C-standard-function attribution on top of
// RuntimeErrorChecker: every error it raises is tagged with the function
// name and the parameter index being checked.
type CStdLibChecker struct {
	*RuntimeErrorChecker
	FunctionName string
}

// NewCStdLibChecker returns a checker attributing errors to functionName.
func NewCStdLibChecker(base *RuntimeErrorChecker, functionName string) *CStdLibChecker {
	return &CStdLibChecker{RuntimeErrorChecker: base, FunctionName: functionName}
}

func (c *CStdLibChecker) tag(err *rterror.Error, paramIndex uint32) *rterror.Error {
	if err == nil {
		return nil
	}
	err.Args = append(err.Args, rterror.String(c.FunctionName), rterror.ParameterIndex(paramIndex))
	return err
}

// CheckMemoryAccessForParameter is RuntimeErrorChecker.CheckMemoryAccess,
// tagging any resulting error with this function's name and paramIndex. It
// is the entry point the library-call interception framework (§4.11) uses
// for every wrapped pointer argument, input or output.
func (c *CStdLibChecker) CheckMemoryAccessForParameter(addr, size uint64, access Access, paramIndex uint32) *rterror.Error {
	return c.tag(c.RuntimeErrorChecker.CheckMemoryAccess(addr, size, access), paramIndex)
}

// CheckCStringRead validates the NUL-terminated string argument at
// paramIndex starting at addr, returning the number of readable bytes
// including the terminator, or 0 and a tagged error.
func (c *CStdLibChecker) CheckCStringRead(reader MemoryReader, addr uint64, paramIndex uint32) (uint64, *rterror.Error) {
	area, err := c.MemoryExists(addr)
	if err != nil {
		return 0, c.tag(err, paramIndex)
	}
	n, err := c.GetCStringInArea(reader, area, addr)
	if err != nil {
		return 0, c.tag(err, paramIndex)
	}
	return n, nil
}

// CheckLimitedCStringRead is CheckCStringRead bounded by limit bytes (for
// strncpy-family functions). A string with no NUL within limit bytes is
// accepted, and limit returned, when all limit bytes lie inside the
// allocation and are initialized.
func (c *CStdLibChecker) CheckLimitedCStringRead(reader MemoryReader, addr, limit uint64, paramIndex uint32) (uint64, *rterror.Error) {
	area, err := c.MemoryExists(addr)
	if err != nil {
		return 0, c.tag(err, paramIndex)
	}
	n, err := c.GetLimitedCStringInArea(reader, area, addr, limit)
	if err != nil {
		if err.Kind == rterror.KindNullTerminatorMissing && limit <= area.Address()+area.Length()-addr {
			return limit, nil
		}
		return 0, c.tag(err, paramIndex)
	}
	return n, nil
}

// CheckCStringArray validates a NUL-pointer-terminated array of string
// pointers (e.g. argv, envp) whose entries the caller has already read into
// ptrs: the array is accepted if ptrs holds a zero entry, and otherwise
// raises KindNullTerminatorMissing with len(ptrs) as its size. The memory
// the entries were read from is not checked here.
func (c *CStdLibChecker) CheckCStringArray(ptrs []uint64, paramIndex uint32) *rterror.Error {
	for _, p := range ptrs {
		if p == 0 {
			return nil
		}
	}
	return c.tag(rterror.New(rterror.KindNullTerminatorMissing, c.InstructionIndex, rterror.Size(uint64(len(ptrs)))), paramIndex)
}

// FormatArgKind is a coarse classification of a vararg's type, used to
// cross-check against a printf/scanf conversion specifier.
type FormatArgKind uint8

const (
	FormatArgInt FormatArgKind = iota
	FormatArgUnsigned
	FormatArgFloat
	FormatArgString
	FormatArgPointer
	FormatArgChar
)

// formatSpecifierKind maps a printf/scanf conversion character to the
// FormatArgKind it expects, and reports whether the specifier is one this
// checker can fully validate today. %n and positional (%1$d-style)
// specifiers are recognized but not cross-checked: they are flagged with
// KindFormatArgumentUnchecked rather than silently accepted.
func formatSpecifierKind(verb byte) (kind FormatArgKind, checked bool, recognized bool) {
	switch verb {
	case 'd', 'i':
		return FormatArgInt, true, true
	case 'u', 'o', 'x', 'X':
		return FormatArgUnsigned, true, true
	case 'f', 'F', 'e', 'E', 'g', 'G':
		return FormatArgFloat, true, true
	case 's':
		return FormatArgString, true, true
	case 'p':
		return FormatArgPointer, true, true
	case 'c':
		return FormatArgChar, true, true
	case 'n':
		return FormatArgPointer, false, true
	default:
		return 0, false, false
	}
}

// CheckPrintFormat cross-checks each conversion specifier in format against
// the corresponding entry of argKinds, in order. It returns the first
// mismatch found. A specifier this checker cannot fully validate (such as
// %n) raises KindFormatArgumentUnchecked as a warning rather than being
// skipped outright, so the gap is visible in the trace.
func (c *CStdLibChecker) CheckPrintFormat(format string, argKinds []FormatArgKind, paramIndex uint32) *rterror.Error {
	argIdx := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i >= len(format) {
			return c.tag(rterror.New(rterror.KindFormatStringMismatch, c.InstructionIndex, rterror.String(format)), paramIndex)
		}
		if format[i] == '%' {
			continue
		}
		// Skip flags, width, and precision characters.
		for i < len(format) && strings.ContainsRune("-+ #0123456789.*lhLqjzt", rune(format[i])) {
			i++
		}
		if i >= len(format) {
			return c.tag(rterror.New(rterror.KindFormatStringMismatch, c.InstructionIndex, rterror.String(format)), paramIndex)
		}
		if format[i] == '$' {
			return c.tag(rterror.New(rterror.KindFormatArgumentUnchecked, c.InstructionIndex, rterror.String(format)).WithSeverity(rterror.SeverityWarning), paramIndex)
		}

		kind, checked, recognized := formatSpecifierKind(format[i])
		if !recognized {
			return c.tag(rterror.New(rterror.KindFormatStringMismatch, c.InstructionIndex, rterror.String(format)), paramIndex)
		}
		if !checked {
			return c.tag(rterror.New(rterror.KindFormatArgumentUnchecked, c.InstructionIndex, rterror.String(format)).WithSeverity(rterror.SeverityWarning), paramIndex)
		}
		if argIdx >= len(argKinds) {
			return c.tag(rterror.New(rterror.KindFormatStringMismatch, c.InstructionIndex, rterror.Size(uint64(argIdx))), paramIndex)
		}
		if argKinds[argIdx] != kind {
			return c.tag(rterror.New(rterror.KindFormatArgumentTypeMismatch, c.InstructionIndex, rterror.Select(uint32(argIdx))), paramIndex)
		}
		argIdx++
	}
	return nil
}
