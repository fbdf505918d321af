package dsa

// Permission describes the static access rights of a memory area when it is
// treated as "known" external memory (e.g. a libc-internal static buffer
// returned by strerror or localeconv).
type Permission uint8

const (
	// PermNone grants neither read nor write access.
	PermNone Permission = iota
	// PermReadOnly permits reads only.
	PermReadOnly
	// PermWriteOnly permits writes only.
	PermWriteOnly
	// PermReadWrite permits both reads and writes.
	PermReadWrite
)

func (p Permission) String() string {
	switch p {
	case PermNone:
		return "none"
	case PermReadOnly:
		return "read-only"
	case PermWriteOnly:
		return "write-only"
	case PermReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// AllowsRead reports whether p permits reads.
func (p Permission) AllowsRead() bool {
	return p == PermReadOnly || p == PermReadWrite
}

// AllowsWrite reports whether p permits writes.
func (p Permission) AllowsWrite() bool {
	return p == PermWriteOnly || p == PermReadWrite
}

// MemoryArea is an address-space Interval tagged with a static permission.
type MemoryArea struct {
	Interval[uint64]
	access Permission
}

// NewMemoryArea builds a read-write MemoryArea of the given length starting
// at address.
func NewMemoryArea(address uint64, length uint64) MemoryArea {
	return MemoryArea{Interval: NewIntervalLength(address, length), access: PermReadWrite}
}

// NewMemoryAreaWithPermission builds a MemoryArea with an explicit
// permission, used for known external memory regions.
func NewMemoryAreaWithPermission(address, length uint64, access Permission) MemoryArea {
	return MemoryArea{Interval: NewIntervalLength(address, length), access: access}
}

// Address returns the first address in the area.
func (a MemoryArea) Address() uint64 { return a.Start() }

// LastAddress returns the last address in the area.
func (a MemoryArea) LastAddress() uint64 { return a.Last() }

// Access returns the area's permission.
func (a MemoryArea) Access() Permission { return a.access }

// WithLength returns a copy of a with a new length, keeping the start
// address and permission.
func (a MemoryArea) WithLength(length uint64) MemoryArea {
	return NewMemoryAreaWithPermission(a.Address(), length, a.access)
}
