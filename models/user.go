package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role separates marshals (who staff races) from managers (who run them).
type Role string

const (
	RoleMarshal Role = "marshal"
	RoleManager Role = "manager"
)

// AccountStatus is the moderation state of an account.
type AccountStatus string

const (
	AccountPending   AccountStatus = "pending"
	AccountApproved  AccountStatus = "approved"
	AccountSuspended AccountStatus = "suspended"
	AccountRejected  AccountStatus = "rejected"
)

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountPending, AccountApproved, AccountSuspended, AccountRejected:
		return true
	}
	return false
}

// Profile is the marshal-facing part of an account.
type Profile struct {
	Specializations []string `json:"specializations,omitempty"`
	ExperienceLevel string   `json:"experienceLevel,omitempty"`
	WorkStatus      string   `json:"workStatus,omitempty"`
}

// User is a marshal or manager account. MarshalID is set once, at creation,
// for marshals only.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Name      string        `bun:"name,notnull" json:"name"`
	Email     string        `bun:"email,notnull,unique" json:"email"`
	Phone     string        `bun:"phone" json:"phone,omitempty"`
	Password  string        `bun:"password,notnull" json:"-"`
	Role      Role          `bun:"role,notnull" json:"role"`
	Status    AccountStatus `bun:"status,notnull" json:"status"`
	MarshalID *string       `bun:"marshal_id,unique" json:"marshalId,omitempty"`
	Profile   Profile       `bun:"profile,type:jsonb" json:"profile"`
	CreatedAt time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time     `bun:"updated_at,notnull" json:"updatedAt"`
}

// Active reports whether the account is an approved marshal.
func (u *User) Active() bool {
	return u.Role == RoleMarshal && u.Status == AccountApproved
}
