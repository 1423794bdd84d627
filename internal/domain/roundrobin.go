package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// RoundRobinAvailabilityMember is one candidate host with the creation
// time of their most recent service event, nil when they have none.
type RoundRobinAvailabilityMember struct {
	UserID  uuid.UUID
	Created *time.Time
}

// RoundRobinAvailabilityAssignment picks the host who has waited the
// longest since last being assigned a service event. Hosts with no
// service event at all win over any host with one. Ties break on the
// stable ordering of host ids.
type RoundRobinAvailabilityAssignment struct {
	Members []RoundRobinAvailabilityMember
}

// Assign returns the selected host, or false when there are no members.
func (a RoundRobinAvailabilityAssignment) Assign() (uuid.UUID, bool) {
	if len(a.Members) == 0 {
		return uuid.UUID{}, false
	}
	members := make([]RoundRobinAvailabilityMember, len(a.Members))
	copy(members, a.Members)
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].UserID.String() < members[j].UserID.String()
	})

	selected := members[0]
	for _, member := range members[1:] {
		if selected.Created == nil {
			break
		}
		if member.Created == nil || member.Created.Before(*selected.Created) {
			selected = member
		}
	}
	return selected.UserID, true
}

// RoundRobinEqualDistributionAssignment picks the host with the fewest
// upcoming service events. Ties break on the stable ordering of host
// ids.
type RoundRobinEqualDistributionAssignment struct {
	Events  []*CalendarEvent
	UserIDs []uuid.UUID
}

// Assign returns the selected host, or false when there are no
// candidates.
func (a RoundRobinEqualDistributionAssignment) Assign() (uuid.UUID, bool) {
	if len(a.UserIDs) == 0 {
		return uuid.UUID{}, false
	}
	counts := make(map[uuid.UUID]int, len(a.UserIDs))
	for _, userID := range a.UserIDs {
		counts[userID] = 0
	}
	for _, event := range a.Events {
		if _, tracked := counts[event.UserID]; tracked {
			counts[event.UserID]++
		}
	}

	userIDs := make([]uuid.UUID, len(a.UserIDs))
	copy(userIDs, a.UserIDs)
	sort.SliceStable(userIDs, func(i, j int) bool {
		return userIDs[i].String() < userIDs[j].String()
	})

	selected := userIDs[0]
	for _, userID := range userIDs[1:] {
		if counts[userID] < counts[selected] {
			selected = userID
		}
	}
	return selected, true
}
