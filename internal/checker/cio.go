package checker

import "github.com/seec-team/seectrace/internal/rterror"

// CIOChecker validates FILE* parameters against the process-level stream
// table before a shim invokes the real fread/fwrite/fclose/etc.
type CIOChecker struct {
	*CStdLibChecker
	Streams *StreamTable
}

// NewCIOChecker returns a checker backed by streams.
func NewCIOChecker(base *CStdLibChecker, streams *StreamTable) *CIOChecker {
	return &CIOChecker{CStdLibChecker: base, Streams: streams}
}

// CheckStream validates that addr names a currently open stream.
func (c *CIOChecker) CheckStream(addr uint64, paramIndex uint32) *rterror.Error {
	if addr == 0 || !c.Streams.IsOpen(addr) {
		return c.tag(rterror.New(rterror.KindStreamInvalid, c.InstructionIndex, rterror.Address(addr)), paramIndex)
	}
	return nil
}

// DIRChecker is CIOChecker's analogue for DIR* parameters.
type DIRChecker struct {
	*CStdLibChecker
	Dirs *DirTable
}

// NewDIRChecker returns a checker backed by dirs.
func NewDIRChecker(base *CStdLibChecker, dirs *DirTable) *DIRChecker {
	return &DIRChecker{CStdLibChecker: base, Dirs: dirs}
}

// CheckDir validates that addr names a currently open directory stream.
func (c *DIRChecker) CheckDir(addr uint64, paramIndex uint32) *rterror.Error {
	if addr == 0 || !c.Dirs.IsOpen(addr) {
		return c.tag(rterror.New(rterror.KindDirectoryInvalid, c.InstructionIndex, rterror.Address(addr)), paramIndex)
	}
	return nil
}
