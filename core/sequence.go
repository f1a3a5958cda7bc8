package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MarshalSequenceKey is the counter behind KMT-<n> marshal identifiers.
	MarshalSequenceKey = "marshal_id"
	// DefaultMarshalBase makes the first marshal KMT-100.
	DefaultMarshalBase int64 = 99

	raceSequencePrefix = "race_id_"
	maxDailyRaces      = 99
)

// Allocator builds human-readable identifiers from atomic sequences.
type Allocator struct {
	seq         Sequencer
	marshalBase int64
	loc         *time.Location
}

// NewAllocator returns an allocator issuing marshal numbers above marshalBase
// and race numbers per calendar day in loc.
func NewAllocator(seq Sequencer, marshalBase int64, loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.UTC
	}
	return &Allocator{seq: seq, marshalBase: marshalBase, loc: loc}
}

// NextMarshalID returns a fresh KMT-<n> identifier.
func (a *Allocator) NextMarshalID(ctx context.Context) (string, error) {
	n, err := a.seq.Next(ctx, MarshalSequenceKey, a.marshalBase)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Msg: "allocate marshal id", Err: err}
	}
	return FormatMarshalID(n), nil
}

// NextRaceID returns a fresh KMT-R<YYYYMMDD><SS> identifier for the calendar
// day of at. Each day has its own counter.
func (a *Allocator) NextRaceID(ctx context.Context, at time.Time) (string, error) {
	day := at.In(a.loc).Format("20060102")
	n, err := a.seq.Next(ctx, RaceSequenceKey(day), 0)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Msg: "allocate race id", Err: err}
	}
	if n > maxDailyRaces {
		return "", newError(KindUnavailable, "race ids for %s exhausted", day)
	}
	return FormatRaceID(day, n), nil
}

// RaceSequenceKey is the counter key for races created on day (YYYYMMDD).
func RaceSequenceKey(day string) string {
	return raceSequencePrefix + day
}

func FormatMarshalID(n int64) string {
	return fmt.Sprintf("KMT-%d", n)
}

func FormatRaceID(day string, n int64) string {
	return fmt.Sprintf("KMT-R%s%02d", day, n)
}

// ParseMarshalID extracts n from KMT-<n>.
func ParseMarshalID(s string) (int64, bool) {
	rest, ok := strings.CutPrefix(s, "KMT-")
	if !ok || rest == "" || strings.HasPrefix(rest, "R") {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ParseRaceID splits KMT-R<YYYYMMDD><SS> into its day and sequence number.
func ParseRaceID(s string) (day string, n int64, ok bool) {
	rest, found := strings.CutPrefix(s, "KMT-R")
	if !found || len(rest) != 10 {
		return "", 0, false
	}
	day = rest[:8]
	if _, err := time.Parse("20060102", day); err != nil {
		return "", 0, false
	}
	n, err := strconv.ParseInt(rest[8:], 10, 64)
	if err != nil || n < 0 {
		return "", 0, false
	}
	return day, n, true
}
