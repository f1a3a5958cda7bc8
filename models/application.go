package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ApplicationStatus is a state of the application ledger.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// Performance is the manager's rating of a marshal after the event.
type Performance struct {
	Rating   int       `json:"rating"`
	Feedback string    `json:"feedback,omitempty"`
	RatedBy  uuid.UUID `json:"ratedBy"`
	RatedAt  time.Time `json:"ratedAt"`
}

// Application is a marshal's request to work a race. There is at most one per
// (marshal, race) pair and rows are never deleted.
type Application struct {
	bun.BaseModel `bun:"table:applications,alias:a"`

	ID               uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	MarshalID        uuid.UUID         `bun:"marshal_id,notnull,type:uuid,unique:applications_no_dupes" json:"marshalId"`
	RaceID           uuid.UUID         `bun:"race_id,notnull,type:uuid,unique:applications_no_dupes" json:"raceId"`
	Message          string            `bun:"message" json:"message,omitempty"`
	Status           ApplicationStatus `bun:"status,notnull" json:"status"`
	AppliedAt        time.Time         `bun:"applied_at,notnull" json:"appliedAt"`
	RespondedAt      *time.Time        `bun:"responded_at" json:"respondedAt,omitempty"`
	RespondedBy      *uuid.UUID        `bun:"responded_by,type:uuid" json:"respondedBy,omitempty"`
	ManagerNotes     string            `bun:"manager_notes" json:"managerNotes,omitempty"`
	AssignedPosition string            `bun:"assigned_position" json:"assignedPosition,omitempty"`
	Performance      *Performance      `bun:"performance,type:jsonb" json:"performance,omitempty"`
}
