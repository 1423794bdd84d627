package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobinAvailabilityAssignment(t *testing.T) {
	now := time.Now().UTC()
	earlier := now.Add(-2 * time.Hour)

	t.Run("no members", func(t *testing.T) {
		_, ok := RoundRobinAvailabilityAssignment{}.Assign()
		assert.False(t, ok)
	})

	t.Run("host with no service event wins", func(t *testing.T) {
		fresh := uuid.New()
		busy := uuid.New()
		selected, ok := RoundRobinAvailabilityAssignment{
			Members: []RoundRobinAvailabilityMember{
				{UserID: busy, Created: &now},
				{UserID: fresh},
			},
		}.Assign()
		require.True(t, ok)
		assert.Equal(t, fresh, selected)
	})

	t.Run("oldest assignment wins", func(t *testing.T) {
		recent := uuid.New()
		waiting := uuid.New()
		selected, ok := RoundRobinAvailabilityAssignment{
			Members: []RoundRobinAvailabilityMember{
				{UserID: recent, Created: &now},
				{UserID: waiting, Created: &earlier},
			},
		}.Assign()
		require.True(t, ok)
		assert.Equal(t, waiting, selected)
	})

	t.Run("ties break deterministically", func(t *testing.T) {
		a := uuid.New()
		b := uuid.New()
		members := []RoundRobinAvailabilityMember{
			{UserID: a, Created: &now},
			{UserID: b, Created: &now},
		}
		first, ok := RoundRobinAvailabilityAssignment{Members: members}.Assign()
		require.True(t, ok)
		// reversing the input must not change the winner
		reversed := []RoundRobinAvailabilityMember{members[1], members[0]}
		second, ok := RoundRobinAvailabilityAssignment{Members: reversed}.Assign()
		require.True(t, ok)
		assert.Equal(t, first, second)
	})
}

func TestRoundRobinEqualDistributionAssignment(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		_, ok := RoundRobinEqualDistributionAssignment{}.Assign()
		assert.False(t, ok)
	})

	t.Run("fewest upcoming events wins", func(t *testing.T) {
		light := uuid.New()
		heavy := uuid.New()
		events := []*CalendarEvent{
			{UserID: heavy}, {UserID: heavy}, {UserID: light},
		}
		selected, ok := RoundRobinEqualDistributionAssignment{
			Events:  events,
			UserIDs: []uuid.UUID{heavy, light},
		}.Assign()
		require.True(t, ok)
		assert.Equal(t, light, selected)
	})

	t.Run("events of non-candidates are ignored", func(t *testing.T) {
		candidate := uuid.New()
		outsider := uuid.New()
		selected, ok := RoundRobinEqualDistributionAssignment{
			Events:  []*CalendarEvent{{UserID: outsider}},
			UserIDs: []uuid.UUID{candidate},
		}.Assign()
		require.True(t, ok)
		assert.Equal(t, candidate, selected)
	})
}
