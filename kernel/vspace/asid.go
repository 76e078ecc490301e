// Package vspace manages the lifecycle of hardware address spaces: the ASID
// directory that tracks which translation roots are alive, and the switching
// of the active translation root during context switches. The directory is
// owned by the kernel context that embeds it and is only ever mutated by the
// single kernel execution flow.
package vspace

import (
	"kestrel/kernel"
	"kestrel/kernel/cpu"
	"kestrel/kernel/fault"
	"kestrel/kernel/mm"
)

const (
	// DirectorySize is the number of pool slots in the ASID directory.
	DirectorySize = 1 << cpu.ASIDHighBits

	// PoolSize is the number of ASID mappings in one pool.
	PoolSize = 1 << cpu.ASIDLowBits

	// InitialTaskASID is the ASID assigned to the initial task's address
	// space during boot.
	InitialTaskASID ASID = 1

	asidLowMask = PoolSize - 1
)

var (
	errPoolBaseUnaligned = &kernel.Error{Module: "vspace", Message: "pool base asid is not aligned to the pool size"}
	errSlotOccupied      = &kernel.Error{Module: "vspace", Message: "directory slot already holds a pool"}
	errNoPoolForASID     = &kernel.Error{Module: "vspace", Message: "no pool covers the requested asid"}
	errMappingInUse      = &kernel.Error{Module: "vspace", Message: "asid is already bound to a vspace"}

	// invalidateTLBFn points to the TLB invalidation primitive for the
	// local core. Tests swap it to observe invalidation ordering.
	invalidateTLBFn = cpu.TLBInvalidateASID
)

// ASID identifies a hardware address space. The value decomposes into a
// directory index (high bits) and a pool index (low bits). ASID 0 is
// reserved and never names a live address space.
type ASID uint32

// poolIndex returns the directory slot covering this ASID.
func (a ASID) poolIndex() uint32 {
	return uint32(a) >> cpu.ASIDLowBits
}

// slotIndex returns the mapping slot for this ASID inside its pool.
func (a ASID) slotIndex() uint32 {
	return uint32(a) & asidLowMask
}

// MappingKind tags the contents of a pool slot.
type MappingKind uint8

const (
	// MappingNone marks an empty slot.
	MappingNone MappingKind = iota

	// MappingVSpace marks a slot bound to a live translation root.
	MappingVSpace
)

// Mapping is the contents of one ASID pool slot. A mapping of kind
// MappingVSpace denotes a translation root that is currently or was
// previously loaded into the MMU under this slot's ASID.
type Mapping struct {
	Kind MappingKind
	Root mm.Frame
}

// Pool is a fixed table of ASID mappings covering PoolSize consecutive ASID
// values. Pools are kernel objects; the backing frame records where the
// object lives in physical memory.
type Pool struct {
	frame    mm.Frame
	mappings [PoolSize]Mapping
}

// NewPool returns an empty pool backed by the supplied kernel-object frame.
func NewPool(frame mm.Frame) *Pool {
	return &Pool{frame: frame}
}

// Frame returns the physical frame backing this pool.
func (p *Pool) Frame() mm.Frame {
	return p.frame
}

// Mapping returns the mapping stored at the given pool slot.
func (p *Pool) Mapping(slot uint32) Mapping {
	return p.mappings[slot]
}

// Directory is the top-level ASID table. Each slot either is empty or holds
// a pool covering PoolSize consecutive ASIDs.
type Directory struct {
	pools [DirectorySize]*Pool

	// kernelRoot is the translation root that maps only the global kernel
	// window. It is installed whenever no user address space root can be
	// derived (see SetVMRoot).
	kernelRoot mm.Frame
}

// NewDirectory returns an empty directory whose global-translation fallback
// is the given kernel root frame.
func NewDirectory(kernelRoot mm.Frame) *Directory {
	return &Directory{kernelRoot: kernelRoot}
}

// KernelRoot returns the global-translation fallback root.
func (d *Directory) KernelRoot() mm.Frame {
	return d.kernelRoot
}

// PoolAt returns the pool installed at the given directory slot, or nil.
func (d *Directory) PoolAt(index uint32) *Pool {
	return d.pools[index]
}

// FindPoolForASID returns the pool covering asid, or nil if the directory
// slot is empty. No hardware side effects.
func (d *Directory) FindPoolForASID(asid ASID) *Pool {
	return d.pools[asid.poolIndex()]
}

// FindMapForASID returns the mapping stored for asid. The second return
// value is false if no pool covers the asid.
func (d *Directory) FindMapForASID(asid ASID) (Mapping, bool) {
	pool := d.FindPoolForASID(asid)
	if pool == nil {
		return Mapping{}, false
	}
	return pool.mappings[asid.slotIndex()], true
}

// FindVSpaceForASID returns the translation root bound to asid. If no pool
// covers the asid or the mapping does not hold a vspace root, a root-invalid
// lookup fault is reported for the capability-fault path to consume.
func (d *Directory) FindVSpaceForASID(asid ASID) (mm.Frame, *fault.Lookup) {
	mapping, ok := d.FindMapForASID(asid)
	if !ok || mapping.Kind != MappingVSpace {
		return mm.InvalidFrame, fault.InvalidRoot()
	}
	return mapping.Root, nil
}

// InstallInitialPool installs the boot-time pool holding the initial task's
// ASID mapping. The pool is placed at the directory slot covering
// InitialTaskASID and the initial task's translation root is bound to that
// ASID.
func (d *Directory) InstallInitialPool(pool *Pool, vspaceRoot mm.Frame) {
	pool.mappings[InitialTaskASID.slotIndex()] = Mapping{Kind: MappingVSpace, Root: vspaceRoot}
	d.pools[InitialTaskASID.poolIndex()] = pool
}

// AssignPool installs a freshly allocated pool at the directory slot
// covering base. The base must be aligned to the pool size and the slot must
// be empty.
func (d *Directory) AssignPool(base ASID, pool *Pool) *kernel.Error {
	if base.slotIndex() != 0 {
		return errPoolBaseUnaligned
	}
	if d.pools[base.poolIndex()] != nil {
		return errSlotOccupied
	}

	d.pools[base.poolIndex()] = pool
	return nil
}

// BindVSpace binds a translation root to asid. The pool covering asid must
// be installed and the slot must not already hold a vspace.
func (d *Directory) BindVSpace(asid ASID, root mm.Frame) *kernel.Error {
	pool := d.FindPoolForASID(asid)
	if pool == nil {
		return errNoPoolForASID
	}
	if pool.mappings[asid.slotIndex()].Kind != MappingNone {
		return errMappingInUse
	}

	pool.mappings[asid.slotIndex()] = Mapping{Kind: MappingVSpace, Root: root}
	return nil
}

// DeleteASID removes the binding of asid to the given translation root. The
// mapping is only cleared when it currently holds a vspace whose root equals
// root; any mismatch means the caller's capability is stale and the deletion
// is a no-op success. The TLB is invalidated for the asid strictly before
// the mapping is cleared, and the active translation root is re-derived from
// fallback since the deleted ASID may be the one loaded in the MMU.
func (d *Directory) DeleteASID(asid ASID, root mm.Frame, fallback Cap) *fault.Lookup {
	pool := d.FindPoolForASID(asid)
	if pool == nil {
		return nil
	}

	mapping := pool.mappings[asid.slotIndex()]
	if mapping.Kind != MappingVSpace || mapping.Root != root {
		return nil
	}

	invalidateTLBFn(uint32(asid))
	pool.mappings[asid.slotIndex()] = Mapping{}
	return d.SetVMRoot(fallback)
}

// DeleteASIDPool removes the pool covering base along with every mapping in
// it. The deletion only acts when pool is the one currently installed at the
// computed directory slot (stale-capability guard). Each bound slot has its
// ASID invalidated from the TLB before the directory slot is cleared, and
// the active translation root is re-derived from fallback.
func (d *Directory) DeleteASIDPool(base ASID, pool *Pool, fallback Cap) *fault.Lookup {
	if pool == nil || d.pools[base.poolIndex()] != pool {
		return nil
	}

	for offset := uint32(0); offset < PoolSize; offset++ {
		if pool.mappings[offset].Kind == MappingVSpace {
			invalidateTLBFn(uint32(base) + offset)
		}
	}
	d.pools[base.poolIndex()] = nil
	return d.SetVMRoot(fallback)
}
