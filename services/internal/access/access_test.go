package access

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type resource struct {
	owner   string
	removed bool
}

func (r resource) OwnedBy() string { return r.owner }
func (r resource) Removed() bool   { return r.removed }

func TestDecideAllowed(t *testing.T) {
	res := resource{owner: "user_a"}
	require.Equal(t, Allowed, Decide("user_a", res, true))
}

func TestDecideMissingRow(t *testing.T) {
	require.Equal(t, NotFound, Decide("user_a", resource{}, false))
}

func TestDecideForeignOwner(t *testing.T) {
	res := resource{owner: "user_b"}
	require.Equal(t, Forbidden, Decide("user_a", res, true))
}

func TestDecideSoftDeletedOwnEntity(t *testing.T) {
	// A principal's own deleted entity reads as gone, not forbidden.
	res := resource{owner: "user_a", removed: true}
	require.Equal(t, NotFound, Decide("user_a", res, true))
}

func TestDecideSoftDeletedForeignEntity(t *testing.T) {
	// Cross-owner access is reported as forbidden even for deleted rows;
	// isolation failures must never degrade to a silent miss.
	res := resource{owner: "user_b", removed: true}
	require.Equal(t, Forbidden, Decide("user_a", res, true))
}

func TestResultString(t *testing.T) {
	require.Equal(t, "allowed", Allowed.String())
	require.Equal(t, "not_found", NotFound.String())
	require.Equal(t, "forbidden", Forbidden.String())
}
