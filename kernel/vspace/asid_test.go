package vspace

import (
	"testing"

	"kestrel/kernel/cpu"
	"kestrel/kernel/fault"
	"kestrel/kernel/mm"
)

func TestASIDDecomposition(t *testing.T) {
	specs := []struct {
		asid         ASID
		expPoolIndex uint32
		expSlotIndex uint32
	}{
		{0, 0, 0},
		{1, 0, 1},
		{PoolSize - 1, 0, PoolSize - 1},
		{PoolSize, 1, 0},
		{PoolSize + 42, 1, 42},
		{(DirectorySize-1)*PoolSize + (PoolSize - 1), DirectorySize - 1, PoolSize - 1},
	}

	for specIndex, spec := range specs {
		if got := spec.asid.poolIndex(); got != spec.expPoolIndex {
			t.Errorf("[spec %d] expected pool index %d; got %d", specIndex, spec.expPoolIndex, got)
		}
		if got := spec.asid.slotIndex(); got != spec.expSlotIndex {
			t.Errorf("[spec %d] expected slot index %d; got %d", specIndex, spec.expSlotIndex, got)
		}
		if spec.asid.poolIndex() >= DirectorySize {
			t.Errorf("[spec %d] pool index out of directory range", specIndex)
		}
		if spec.asid.slotIndex() >= PoolSize {
			t.Errorf("[spec %d] slot index out of pool range", specIndex)
		}
	}
}

func TestBindAndFindRoundTrip(t *testing.T) {
	var (
		dir  = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool = NewPool(mm.FrameFromAddress(0x81000000))
		root = mm.FrameFromAddress(0x82000000)
		asid = ASID(PoolSize + 7)
	)

	if err := dir.AssignPool(PoolSize, pool); err != nil {
		t.Fatal(err)
	}

	if err := dir.BindVSpace(asid, root); err != nil {
		t.Fatal(err)
	}

	mapping, ok := dir.FindMapForASID(asid)
	if !ok {
		t.Fatal("expected a pool to cover the bound asid")
	}
	if mapping.Kind != MappingVSpace || mapping.Root != root {
		t.Fatalf("expected to read back mapping {VSpace, %x}; got {%d, %x}", root, mapping.Kind, mapping.Root)
	}
}

func TestFindVSpaceForASID(t *testing.T) {
	var (
		dir  = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool = NewPool(mm.FrameFromAddress(0x81000000))
		root = mm.FrameFromAddress(0x82000000)
	)

	if err := dir.AssignPool(0, pool); err != nil {
		t.Fatal(err)
	}
	if err := dir.BindVSpace(2, root); err != nil {
		t.Fatal(err)
	}

	specs := []struct {
		asid     ASID
		expRoot  mm.Frame
		expFault bool
	}{
		// bound slot resolves to its root
		{2, root, false},
		// empty slot in a covered pool
		{3, mm.InvalidFrame, true},
		// no pool covers this asid
		{PoolSize * 3, mm.InvalidFrame, true},
	}

	for specIndex, spec := range specs {
		gotRoot, lf := dir.FindVSpaceForASID(spec.asid)
		if spec.expFault {
			if lf == nil || lf.Kind != fault.LookupInvalidRoot {
				t.Errorf("[spec %d] expected a root-invalid lookup fault; got %v", specIndex, lf)
			}
			continue
		}

		if lf != nil {
			t.Errorf("[spec %d] unexpected lookup fault: %v", specIndex, lf)
			continue
		}
		if gotRoot != spec.expRoot {
			t.Errorf("[spec %d] expected root %x; got %x", specIndex, spec.expRoot, gotRoot)
		}
	}
}

func TestAssignPool(t *testing.T) {
	var (
		dir   = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool1 = NewPool(mm.FrameFromAddress(0x81000000))
		pool2 = NewPool(mm.FrameFromAddress(0x83000000))
	)

	if err := dir.AssignPool(PoolSize+1, pool1); err != errPoolBaseUnaligned {
		t.Fatalf("expected errPoolBaseUnaligned; got %v", err)
	}

	if err := dir.AssignPool(PoolSize, pool1); err != nil {
		t.Fatal(err)
	}

	if err := dir.AssignPool(PoolSize, pool2); err != errSlotOccupied {
		t.Fatalf("expected errSlotOccupied; got %v", err)
	}

	if got := dir.FindPoolForASID(PoolSize + 100); got != pool1 {
		t.Fatal("expected assigned pool to cover its asid range")
	}
}

func TestBindVSpaceErrors(t *testing.T) {
	var (
		dir  = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool = NewPool(mm.FrameFromAddress(0x81000000))
		root = mm.FrameFromAddress(0x82000000)
	)

	if err := dir.BindVSpace(1, root); err != errNoPoolForASID {
		t.Fatalf("expected errNoPoolForASID; got %v", err)
	}

	if err := dir.AssignPool(0, pool); err != nil {
		t.Fatal(err)
	}
	if err := dir.BindVSpace(1, root); err != nil {
		t.Fatal(err)
	}

	if err := dir.BindVSpace(1, mm.FrameFromAddress(0x84000000)); err != errMappingInUse {
		t.Fatalf("expected errMappingInUse; got %v", err)
	}
}

func TestDeleteASIDStaleGuard(t *testing.T) {
	defer cpu.Reset()
	cpu.Reset()

	var (
		dir   = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool  = NewPool(mm.FrameFromAddress(0x81000000))
		rootA = mm.FrameFromAddress(0x82000000)
		rootB = mm.FrameFromAddress(0x83000000)
		asid  = ASID(5)
	)

	if err := dir.AssignPool(0, pool); err != nil {
		t.Fatal(err)
	}
	if err := dir.BindVSpace(asid, rootA); err != nil {
		t.Fatal(err)
	}

	// Deleting with a root the asid is not bound to is a no-op success.
	if lf := dir.DeleteASID(asid, rootB, Cap{}); lf != nil {
		t.Fatalf("unexpected lookup fault: %v", lf)
	}
	if mapping, _ := dir.FindMapForASID(asid); mapping.Kind != MappingVSpace || mapping.Root != rootA {
		t.Fatal("expected stale delete to leave the mapping untouched")
	}

	// Deleting an asid no pool covers is also a no-op success.
	if lf := dir.DeleteASID(PoolSize*4, rootA, Cap{}); lf != nil {
		t.Fatalf("unexpected lookup fault: %v", lf)
	}

	// A matching delete clears the mapping; the unmapped fallback cap makes
	// the root re-derivation report root-invalid.
	if lf := dir.DeleteASID(asid, rootA, Cap{}); lf == nil || lf.Kind != fault.LookupInvalidRoot {
		t.Fatalf("expected root-invalid from the fallback re-derivation; got %v", lf)
	}
	if _, lf := dir.FindVSpaceForASID(asid); lf == nil {
		t.Fatal("expected deleted asid to report a lookup fault")
	}

	// Deleting again finds nothing to match and succeeds silently.
	if lf := dir.DeleteASID(asid, rootA, Cap{}); lf != nil {
		t.Fatalf("unexpected lookup fault: %v", lf)
	}
}

func TestDeleteASIDInvalidatesTLBBeforeClearing(t *testing.T) {
	defer func() {
		invalidateTLBFn = cpu.TLBInvalidateASID
		cpu.Reset()
	}()
	cpu.Reset()

	var (
		dir       = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool      = NewPool(mm.FrameFromAddress(0x81000000))
		root      = mm.FrameFromAddress(0x82000000)
		asid      = ASID(9)
		flushedAt []uint32
	)

	if err := dir.AssignPool(0, pool); err != nil {
		t.Fatal(err)
	}
	if err := dir.BindVSpace(asid, root); err != nil {
		t.Fatal(err)
	}

	invalidateTLBFn = func(flushASID uint32) {
		// The mapping must still be installed when the TLB invalidation
		// happens; clearing it first would leave a window where a stale
		// translation survives the delete.
		if mapping, _ := dir.FindMapForASID(asid); mapping.Kind != MappingVSpace {
			t.Error("expected mapping to still be installed during TLB invalidation")
		}
		flushedAt = append(flushedAt, flushASID)
	}

	dir.DeleteASID(asid, root, Cap{})

	if len(flushedAt) != 1 || flushedAt[0] != uint32(asid) {
		t.Fatalf("expected exactly one TLB invalidation for asid %d; got %v", asid, flushedAt)
	}

	if mapping, _ := dir.FindMapForASID(asid); mapping.Kind != MappingNone {
		t.Fatal("expected mapping to be cleared after the delete")
	}
}

func TestDeleteASIDRederivesActiveRoot(t *testing.T) {
	defer cpu.Reset()
	cpu.Reset()

	var (
		dir       = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool      = NewPool(mm.FrameFromAddress(0x81000000))
		victim    = mm.FrameFromAddress(0x82000000)
		surviving = mm.FrameFromAddress(0x83000000)
	)

	if err := dir.AssignPool(0, pool); err != nil {
		t.Fatal(err)
	}
	if err := dir.BindVSpace(4, victim); err != nil {
		t.Fatal(err)
	}
	if err := dir.BindVSpace(6, surviving); err != nil {
		t.Fatal(err)
	}

	// The victim address space is the one loaded in the MMU.
	cpu.SetTranslationRoot(victim.Address(), 4)

	fallback := Cap{Root: surviving, ASID: 6}
	if lf := dir.DeleteASID(4, victim, fallback); lf != nil {
		t.Fatalf("unexpected lookup fault: %v", lf)
	}

	gotRoot, gotASID := cpu.ActiveTranslationRoot()
	if gotRoot != surviving.Address() || gotASID != 6 {
		t.Fatalf("expected active root to be re-derived from the fallback cap; got root %x asid %d", gotRoot, gotASID)
	}

	if cpu.TLBTagged(4) {
		t.Fatal("expected TLB entries for the deleted asid to be invalidated")
	}
}

func TestDeleteASIDPool(t *testing.T) {
	defer cpu.Reset()
	cpu.Reset()

	var (
		dir     = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool    = NewPool(mm.FrameFromAddress(0x81000000))
		stale   = NewPool(mm.FrameFromAddress(0x85000000))
		base    = ASID(PoolSize)
		rootIdx = []uint32{0, 3, PoolSize - 1}
	)

	if err := dir.AssignPool(base, pool); err != nil {
		t.Fatal(err)
	}
	for i, slot := range rootIdx {
		if err := dir.BindVSpace(base+ASID(slot), mm.Frame(0x90000+i)); err != nil {
			t.Fatal(err)
		}
		cpu.TagTLB(uint32(base) + slot)
	}

	// A pool pointer that is not the installed one must not delete anything.
	if lf := dir.DeleteASIDPool(base, stale, Cap{}); lf != nil {
		t.Fatalf("unexpected lookup fault: %v", lf)
	}
	if dir.FindPoolForASID(base) != pool {
		t.Fatal("expected stale pool delete to leave the directory untouched")
	}

	// Deleting the installed pool invalidates every bound slot's ASID and
	// empties the directory slot.
	if lf := dir.DeleteASIDPool(base, pool, Cap{}); lf == nil || lf.Kind != fault.LookupInvalidRoot {
		t.Fatalf("expected root-invalid from the fallback re-derivation; got %v", lf)
	}

	if dir.FindPoolForASID(base) != nil {
		t.Fatal("expected directory slot to be empty after pool delete")
	}

	for _, slot := range rootIdx {
		if cpu.TLBTagged(uint32(base) + slot) {
			t.Fatalf("expected TLB entries for asid %d to be invalidated", uint32(base)+slot)
		}
	}

	// The surviving machine state is the kernel fallback root.
	gotRoot, gotASID := cpu.ActiveTranslationRoot()
	if gotRoot != dir.KernelRoot().Address() || gotASID != cpu.InvalidASID {
		t.Fatalf("expected the kernel root to be installed; got root %x asid %d", gotRoot, gotASID)
	}
}

func TestInstallInitialPool(t *testing.T) {
	var (
		dir  = NewDirectory(mm.FrameFromAddress(0x80000000))
		pool = NewPool(mm.FrameFromAddress(0x81000000))
		root = mm.FrameFromAddress(0x82000000)
	)

	dir.InstallInitialPool(pool, root)

	if got := dir.FindPoolForASID(InitialTaskASID); got != pool {
		t.Fatal("expected the initial pool to cover the initial task asid")
	}

	gotRoot, lf := dir.FindVSpaceForASID(InitialTaskASID)
	if lf != nil {
		t.Fatalf("unexpected lookup fault: %v", lf)
	}
	if gotRoot != root {
		t.Fatalf("expected initial task root %x; got %x", root, gotRoot)
	}

	// Only the initial task slot is populated.
	if mapping := pool.Mapping(0); mapping.Kind != MappingNone {
		t.Fatal("expected slot 0 of the initial pool to stay empty")
	}
}
