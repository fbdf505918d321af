package dsa_test

import (
	"testing"

	"github.com/seec-team/seectrace/internal/dsa"
)

func TestIntervalContains(t *testing.T) {
	iv := dsa.NewInterval[uint64](10, 20)

	cases := []struct {
		value uint64
		want  bool
	}{
		{9, false},
		{10, true},
		{15, true},
		{19, true},
		{20, false},
	}

	for _, c := range cases {
		if got := iv.Contains(c.value); got != c.want {
			t.Errorf("Contains(%d) = %v, want %v", c.value, got, c.want)
		}
	}
}

func TestIntervalIntersectionCommutativeAndIdempotent(t *testing.T) {
	a := dsa.NewInterval[uint64](5, 15)
	b := dsa.NewInterval[uint64](10, 25)

	ab := a.Intersection(b)
	ba := b.Intersection(a)
	if !ab.Equal(ba) {
		t.Errorf("intersection not commutative: %v vs %v", ab, ba)
	}

	aa := a.Intersection(a)
	if !aa.Equal(a) {
		t.Errorf("self-intersection not idempotent: got %v, want %v", aa, a)
	}
}

func TestIntervalIntersectionDisjoint(t *testing.T) {
	a := dsa.NewInterval[uint64](0, 5)
	b := dsa.NewInterval[uint64](10, 15)

	if a.Intersects(b) {
		t.Fatal("disjoint intervals reported as intersecting")
	}

	got := a.Intersection(b)
	if got.Length() != 0 {
		t.Errorf("expected empty intersection, got %v", got)
	}
}

func TestIntervalLast(t *testing.T) {
	iv := dsa.NewInterval[uint64](10, 20)
	if got := iv.Last(); got != 19 {
		t.Errorf("Last() = %d, want 19", got)
	}

	empty := dsa.NewInterval[uint64](10, 10)
	if got := empty.Last(); got != 10 {
		t.Errorf("Last() of empty interval = %d, want 10", got)
	}
}

func TestMemoryAreaPermissions(t *testing.T) {
	area := dsa.NewMemoryAreaWithPermission(0x1000, 16, dsa.PermReadOnly)

	if !area.Access().AllowsRead() {
		t.Error("read-only area should allow reads")
	}
	if area.Access().AllowsWrite() {
		t.Error("read-only area should not allow writes")
	}
	if area.LastAddress() != 0x100f {
		t.Errorf("LastAddress() = %#x, want 0x100f", area.LastAddress())
	}
}
