// Package core implements the marshal staffing engine: identifier allocation,
// the application ledger, capacity enforcement and race announcements.
//
// Every operation takes the authenticated Caller explicitly; the engine trusts
// it and performs role and ownership checks itself.
package core

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/padraicbc/kmtapi/models"
)

// Caller is the authenticated account invoking an operation.
type Caller struct {
	ID   uuid.UUID
	Role models.Role
}

func (c Caller) isManager() bool { return c.Role == models.RoleManager }

// Service exposes the engine's operations to request handlers and tools.
type Service struct {
	store      Store
	ids        *Allocator
	dispatcher *Dispatcher
	log        *zap.Logger
	now        func() time.Time
	hashCost   int
}

type options struct {
	seq         Sequencer
	log         *zap.Logger
	now         func() time.Time
	loc         *time.Location
	marshalBase int64
	batchSize   int
	workers     int
	hashCost    int
}

// Option configures a Service.
type Option func(*options)

// WithSequencer routes identifier allocation to seq instead of the store.
func WithSequencer(seq Sequencer) Option { return func(o *options) { o.seq = seq } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLocation sets the calendar used for the date part of race identifiers.
func WithLocation(loc *time.Location) Option { return func(o *options) { o.loc = loc } }

func WithMarshalBase(base int64) Option { return func(o *options) { o.marshalBase = base } }

// WithNotifyBatching sets the fan-out batch size and concurrency.
func WithNotifyBatching(batchSize, workers int) Option {
	return func(o *options) {
		o.batchSize = batchSize
		o.workers = workers
	}
}

// WithPasswordCost sets the bcrypt cost used for new passwords.
func WithPasswordCost(cost int) Option { return func(o *options) { o.hashCost = cost } }

// New builds a Service on top of store.
func New(store Store, opts ...Option) *Service {
	o := options{
		log:         zap.NewNop(),
		now:         time.Now,
		loc:         time.UTC,
		marshalBase: DefaultMarshalBase,
		hashCost:    bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.seq == nil {
		o.seq = store
	}
	return &Service{
		store:      store,
		ids:        NewAllocator(o.seq, o.marshalBase, o.loc),
		dispatcher: NewDispatcher(store, o.log.Named("notify"), o.batchSize, o.workers),
		log:        o.log,
		now:        o.now,
		hashCost:   o.hashCost,
	}
}

func requireManager(c Caller) error {
	if !c.isManager() {
		return newError(KindForbidden, "manager role required")
	}
	return nil
}
