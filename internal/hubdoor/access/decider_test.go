package access_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonshub/hubdoor/internal/hubdoor/access"
)

func mustSchedule(t *testing.T, days []string, hours string) access.Schedule {
	t.Helper()
	s, err := access.ParseSchedule(days, hours)
	require.NoError(t, err)
	return s
}

func TestDecide_NoRolesAssigned(t *testing.T) {
	roster := access.NewRoster([]access.Role{
		{ID: "r-member", Name: "Member", Schedule: access.Always},
	}, map[string][]string{"r-member": {"alice"}})

	for h := 0; h < 24; h++ {
		d := access.Decide("mallory", roster, at(time.Thursday, h))
		assert.False(t, d.Granted)
		assert.Equal(t, access.ReasonNoRoles, d.Reason)
		assert.Nil(t, d.Role)
	}
}

func TestDecide_GrantedWithinWindow(t *testing.T) {
	roster := access.NewRoster([]access.Role{
		{ID: "r-member", Name: "Member", Schedule: mustSchedule(t, nil, "8-20")},
	}, map[string][]string{"r-member": {"alice"}})

	d := access.Decide("alice", roster, at(time.Monday, 10))
	require.True(t, d.Granted)
	assert.Equal(t, "Member", d.Role.Name)

	d = access.Decide("alice", roster, at(time.Monday, 22))
	assert.False(t, d.Granted)
	assert.Equal(t, access.ReasonNotNow, d.Reason)
	require.Len(t, d.Held, 1)
	assert.Equal(t, "r-member", d.Held[0].ID)
}

func TestDecide_UnionOfHeldRoles(t *testing.T) {
	roster := access.NewRoster([]access.Role{
		{ID: "r-day", Name: "Day pass", Schedule: mustSchedule(t, nil, "9-17")},
		{ID: "r-core", Name: "Core team", Schedule: access.Always},
	}, map[string][]string{
		"r-day":  {"bob"},
		"r-core": {"bob"},
	})

	d := access.Decide("bob", roster, at(time.Tuesday, 22))
	require.True(t, d.Granted)
	assert.Equal(t, "r-core", d.Role.ID)
}

func TestDecide_FirstOpenRoleInDeclarationOrder(t *testing.T) {
	roster := access.NewRoster([]access.Role{
		{ID: "r-a", Name: "A", Schedule: access.Always},
		{ID: "r-b", Name: "B", Schedule: access.Always},
	}, map[string][]string{
		"r-b": {"carol"},
		"r-a": {"carol"},
	})

	d := access.Decide("carol", roster, at(time.Friday, 12))
	require.True(t, d.Granted)
	assert.Equal(t, "r-a", d.Role.ID)
}

func TestDecide_OpenRoleNotHeld(t *testing.T) {
	roster := access.NewRoster([]access.Role{
		{ID: "r-weekend", Name: "Weekend", Schedule: mustSchedule(t, []string{"Saturday", "Sunday"}, "anytime")},
		{ID: "r-open", Name: "Open house", Schedule: access.Always},
	}, map[string][]string{
		"r-weekend": {"dave"},
		"r-open":    {"erin"},
	})

	d := access.Decide("dave", roster, at(time.Wednesday, 12))
	assert.False(t, d.Granted)
	assert.Equal(t, access.ReasonNotNow, d.Reason)
}

func TestRoster_DeduplicatesMembers(t *testing.T) {
	roster := access.NewRoster([]access.Role{
		{ID: "r", Name: "R", Schedule: access.Always},
	}, map[string][]string{"r": {"x", "x", "y"}})

	assert.Equal(t, 2, roster.MemberCount("r"))
	assert.Equal(t, []string{"r"}, roster.RolesOf("x"))
}

func TestKindOf(t *testing.T) {
	err := access.Unauthorized(assert.AnError)
	assert.Equal(t, access.KindUnauthorized, access.KindOf(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, access.Kind(0), access.KindOf(assert.AnError))
}
