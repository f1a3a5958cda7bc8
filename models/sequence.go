package models

import "github.com/uptrace/bun"

// SequenceCounter holds the last issued value of a named sequence.
type SequenceCounter struct {
	bun.BaseModel `bun:"table:sequence_counters,alias:sc"`

	Key   string `bun:"key,pk" json:"key"`
	Value int64  `bun:"value,notnull" json:"value"`
}
