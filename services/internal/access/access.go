package access

// Result is the outcome of checking a principal against a target entity.
type Result int

const (
	// Allowed: the entity exists, is not soft-deleted, and is owned by the principal.
	Allowed Result = iota
	// NotFound: no entity with that identifier exists, or it exists only in
	// soft-deleted form for its own owner.
	NotFound
	// Forbidden: the entity exists but belongs to a different principal.
	// Surfaced distinctly from NotFound so cross-owner attempts are visible
	// as isolation violations rather than degraded to a generic miss.
	Forbidden
)

func (r Result) String() string {
	switch r {
	case Allowed:
		return "allowed"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Resource is the minimal view of an entity the guard needs. The row must be
// fetched by identifier ignoring any soft-delete flag, otherwise a deleted
// entity and a foreign one become indistinguishable.
type Resource interface {
	OwnedBy() string
	Removed() bool
}

// Decide implements the ownership decision table. found is whether the
// identifier resolved to any row at all.
func Decide(principal string, res Resource, found bool) Result {
	if !found {
		return NotFound
	}
	if res.OwnedBy() != principal {
		return Forbidden
	}
	if res.Removed() {
		return NotFound
	}
	return Allowed
}
