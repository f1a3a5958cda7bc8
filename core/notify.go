package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/padraicbc/kmtapi/models"
)

const (
	DefaultNotifyBatchSize = 200
	DefaultNotifyWorkers   = 4
)

// DispatchReport summarises one fan-out. Err is set when some or all
// recipients were not reached.
type DispatchReport struct {
	Recipients int
	Delivered  int
	Err        error
}

// Dispatcher appends announcements to every active marshal's inbox. Delivery
// is best-effort and at most once; failed batches are logged, not retried.
type Dispatcher struct {
	store     NotificationStore
	log       *zap.Logger
	batchSize int
	workers   int
}

// NewDispatcher returns a dispatcher writing in batches of batchSize with up
// to workers batches in flight.
func NewDispatcher(store NotificationStore, log *zap.Logger, batchSize, workers int) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = DefaultNotifyBatchSize
	}
	if workers <= 0 {
		workers = DefaultNotifyWorkers
	}
	return &Dispatcher{store: store, log: log, batchSize: batchSize, workers: workers}
}

// AnnounceRace notifies all active marshals that race was published.
func (d *Dispatcher) AnnounceRace(ctx context.Context, race *models.Race, now time.Time) DispatchReport {
	raceKey := race.ID
	n := models.Notification{
		Type:      models.NotificationNewRace,
		RaceID:    &raceKey,
		Title:     race.Title,
		Message:   fmt.Sprintf("New race %s at %s on %s", race.Title, race.Track, race.StartDate.Format("2006-01-02 15:04")),
		CreatedAt: now,
	}
	return d.Broadcast(ctx, n, zap.String("race_id", race.RaceID))
}

// Broadcast appends n to every active marshal's inbox.
func (d *Dispatcher) Broadcast(ctx context.Context, n models.Notification, fields ...zap.Field) DispatchReport {
	ids, err := d.store.ListActiveMarshalIDs(ctx)
	if err != nil {
		d.log.Warn("notification fan-out failed", append(fields, zap.Error(err))...)
		return DispatchReport{Err: fmt.Errorf("list recipients: %w", err)}
	}

	var delivered atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.workers)
	for start := 0; start < len(ids); start += d.batchSize {
		batch := ids[start:min(start+d.batchSize, len(ids))]
		g.Go(func() error {
			if err := d.store.AppendNotifications(ctx, batch, n); err != nil {
				return err
			}
			delivered.Add(int64(len(batch)))
			return nil
		})
	}
	err = g.Wait()

	report := DispatchReport{Recipients: len(ids), Delivered: int(delivered.Load())}
	if err != nil {
		report.Err = fmt.Errorf("notified %d of %d marshals: %w", report.Delivered, report.Recipients, err)
		d.log.Warn("notification fan-out incomplete", append(fields,
			zap.Int("delivered", report.Delivered),
			zap.Int("recipients", report.Recipients),
			zap.Error(err))...)
		return report
	}
	d.log.Debug("notification fan-out done", append(fields, zap.Int("recipients", report.Recipients))...)
	return report
}
