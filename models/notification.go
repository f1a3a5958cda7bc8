package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NotificationNewRace announces a newly published race.
const NotificationNewRace = "new_race"

// Notification is one entry of a user's inbox. Inbox order is ID order.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID    uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"-"`
	Type      string     `bun:"type,notnull" json:"type"`
	RaceID    *uuid.UUID `bun:"race_id,type:uuid" json:"raceId,omitempty"`
	Title     string     `bun:"title,notnull" json:"title"`
	Message   string     `bun:"message" json:"message,omitempty"`
	Read      bool       `bun:"read,notnull,default:false" json:"read"`
	CreatedAt time.Time  `bun:"created_at,notnull" json:"createdAt"`
}
