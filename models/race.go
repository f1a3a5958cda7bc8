package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RaceStatus is the manager-driven lifecycle state of a race.
type RaceStatus string

const (
	RaceScheduled  RaceStatus = "scheduled"
	RaceInProgress RaceStatus = "in_progress"
	RaceCompleted  RaceStatus = "completed"
	RaceCancelled  RaceStatus = "cancelled"
	RacePostponed  RaceStatus = "postponed"
)

// Valid reports whether s is a known race status.
func (s RaceStatus) Valid() bool {
	switch s {
	case RaceScheduled, RaceInProgress, RaceCompleted, RaceCancelled, RacePostponed:
		return true
	}
	return false
}

// GeneralMarshalType is used when a race only states a flat headcount.
const GeneralMarshalType = "general"

// MarshalRequirement is the headcount needed for one marshal type.
type MarshalRequirement struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Race is a scheduled event staffed by marshals.
type Race struct {
	bun.BaseModel `bun:"table:races,alias:rc"`

	ID           uuid.UUID            `bun:"id,pk,type:uuid" json:"id"`
	RaceID       string               `bun:"race_id,notnull,unique" json:"raceId"`
	Title        string               `bun:"title,notnull" json:"title"`
	Type         string               `bun:"type" json:"type,omitempty"`
	Track        string               `bun:"track" json:"track,omitempty"`
	StartDate    time.Time            `bun:"start_date,notnull" json:"startDate"`
	EndDate      time.Time            `bun:"end_date,notnull" json:"endDate"`
	Requirements []MarshalRequirement `bun:"requirements,type:jsonb" json:"requirements"`
	Status       RaceStatus           `bun:"status,notnull" json:"status"`
	CreatedBy    uuid.UUID            `bun:"created_by,notnull,type:uuid" json:"createdBy"`
	CreatedAt    time.Time            `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt    time.Time            `bun:"updated_at,notnull" json:"updatedAt"`

	Assignments []Assignment `bun:"rel:has-many,join:id=race_id" json:"assignments,omitempty"`
}

// RequiredMarshals is the total headcount across all marshal types.
func (r *Race) RequiredMarshals() int {
	total := 0
	for _, req := range r.Requirements {
		total += req.Count
	}
	return total
}

// Assignment is a marshal placed on a race directly by a manager, outside the
// application flow.
type Assignment struct {
	bun.BaseModel `bun:"table:race_assignments,alias:ra"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	RaceID     uuid.UUID `bun:"race_id,notnull,type:uuid,unique:race_assignments_no_dupes" json:"raceId"`
	MarshalID  uuid.UUID `bun:"marshal_id,notnull,type:uuid,unique:race_assignments_no_dupes" json:"marshalId"`
	Position   string    `bun:"position" json:"position,omitempty"`
	AssignedBy uuid.UUID `bun:"assigned_by,notnull,type:uuid" json:"assignedBy"`
	AssignedAt time.Time `bun:"assigned_at,notnull" json:"assignedAt"`
}
