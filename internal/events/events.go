package events

import "github.com/doublec/ranchportal/internal/models"

// OnMemberApproved is called after a member approval commits.
// services will call this if it's set.
var OnMemberApproved func(m models.Member)

// OnCheckInDecided is called after a check-in is confirmed or rejected.
var OnCheckInDecided func(m models.Member, c models.CheckIn)

// MemberApproved invokes the hook when one is registered.
func MemberApproved(m models.Member) {
	if fn := OnMemberApproved; fn != nil {
		fn(m)
	}
}

func CheckInDecided(m models.Member, c models.CheckIn) {
	if fn := OnCheckInDecided; fn != nil {
		fn(m, c)
	}
}
