package core

import "github.com/padraicbc/kmtapi/models"

// HasRoom reports whether one more application can be approved when approved
// applications already hold seats out of required. Only the aggregate total
// is enforced, not per-type counts.
func HasRoom(required, approved int) bool {
	return approved < required
}

// capacityCheck is the ApprovalCheck used by Respond.
func capacityCheck(race *models.Race, approved int) error {
	if !HasRoom(race.RequiredMarshals(), approved) {
		return newError(KindCapacityExceeded, "capacity reached: %d of %d marshals approved",
			approved, race.RequiredMarshals())
	}
	return nil
}
