package fault

// LookupKind describes why a capability or translation lookup failed.
type LookupKind uint8

// The lookup failure classes. Address-space lookups report
// LookupInvalidRoot; the remaining classes originate in CSpace resolution.
const (
	LookupInvalidRoot LookupKind = iota
	LookupMissingCapability
	LookupDepthMismatch
	LookupGuardMismatch
)

// String returns the human-readable name for the lookup failure kind.
func (k LookupKind) String() string {
	switch k {
	case LookupInvalidRoot:
		return "invalid root"
	case LookupMissingCapability:
		return "missing capability"
	case LookupDepthMismatch:
		return "depth mismatch"
	case LookupGuardMismatch:
		return "guard mismatch"
	default:
		return "invalid lookup fault kind"
	}
}

// Lookup describes a failed capability or translation lookup. The BitsLeft,
// BitsFound and GuardFound fields are only meaningful for the kinds that
// populate them.
type Lookup struct {
	Kind LookupKind

	// BitsLeft is the number of capability pointer bits that remained
	// unresolved when the lookup failed.
	BitsLeft uint8

	// BitsFound is the number of bits the failing level attempted to
	// resolve.
	BitsFound uint8

	// GuardFound is the guard value encountered on a guard mismatch.
	GuardFound uint64
}

// InvalidRoot returns the lookup fault reported when a translation root is
// absent or does not refer to a valid address space.
func InvalidRoot() *Lookup {
	return &Lookup{Kind: LookupInvalidRoot}
}

// String returns the human-readable description of the lookup failure.
func (l *Lookup) String() string {
	return l.Kind.String()
}
