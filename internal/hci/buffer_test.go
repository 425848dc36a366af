package hci

import "testing"

func TestPool_AllocFreeAccounting(t *testing.T) {
	pool := NewPool(128, 4)

	a := pool.Alloc(16)
	b := pool.Alloc(32)
	if a == nil || b == nil {
		t.Fatalf("alloc failed")
	}
	if pool.InUse() != 2 {
		t.Fatalf("in-use = %d, want 2", pool.InUse())
	}

	a.Release()
	b.Release()
	if pool.InUse() != 0 {
		t.Fatalf("in-use = %d after release, want 0", pool.InUse())
	}
	if pool.Allocs() != 2 || pool.Frees() != 2 {
		t.Fatalf("allocs=%d frees=%d, want 2/2", pool.Allocs(), pool.Frees())
	}
}

func TestPool_DoubleFreeCountedNotApplied(t *testing.T) {
	pool := NewPool(128, 4)
	b := pool.Alloc(8)
	b.Release()
	b.Release()

	if pool.DoubleFrees() != 1 {
		t.Fatalf("double frees = %d, want 1", pool.DoubleFrees())
	}
	if pool.Frees() != 1 {
		t.Fatalf("frees = %d, want 1", pool.Frees())
	}
	if pool.InUse() != 0 {
		t.Fatalf("in-use = %d, want 0", pool.InUse())
	}
}

func TestPool_LimitDenies(t *testing.T) {
	pool := NewPool(64, 2)
	a := pool.Alloc(8)
	b := pool.Alloc(8)
	if a == nil || b == nil {
		t.Fatalf("setup alloc failed")
	}
	if c := pool.Alloc(8); c != nil {
		t.Fatalf("expected nil over limit")
	}
	if pool.Denied() != 1 {
		t.Fatalf("denied = %d, want 1", pool.Denied())
	}

	a.Release()
	if c := pool.Alloc(8); c == nil {
		t.Fatalf("expected alloc to succeed after release")
	}
	b.Release()
}

func TestPool_OversizeDenied(t *testing.T) {
	pool := NewPool(32, 0)
	if b := pool.Alloc(33); b != nil {
		t.Fatalf("expected nil for oversize request")
	}
}
