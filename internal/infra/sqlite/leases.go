package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dvloznov/finance-sync/internal/logger"
	"github.com/google/uuid"
)

// ErrLeaseLost is the cancellation cause of a lease context whose lease
// expired or was taken over before it was released.
var ErrLeaseLost = errors.New("run lease lost")

const (
	defaultLeaseTTL           = 2 * time.Minute
	defaultLeaseRetryInterval = time.Second
)

// LeaseOptions configures a RunLease.
type LeaseOptions struct {
	// Name identifies the process in the holder column. Defaults to
	// "<hostname>:<pid>".
	Name string
	// TTL is how long a claim lasts without renewal. The holder renews it
	// every TTL/3.
	TTL time.Duration
	// RetryInterval is the wait between claim attempts while another
	// holder has the lease.
	RetryInterval time.Duration
}

// RunLease serialises export runs of an item across every process sharing
// the database. It satisfies runner.ItemLease.
type RunLease struct {
	store *Store
	name  string
	ttl   time.Duration
	retry time.Duration
}

// RunLease returns a lease manager backed by the run_leases table.
func (s *Store) RunLease(opts LeaseOptions) *RunLease {
	if opts.Name == "" {
		host, _ := os.Hostname()
		opts.Name = fmt.Sprintf("%s:%d", host, os.Getpid())
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultLeaseTTL
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultLeaseRetryInterval
	}
	return &RunLease{store: s, name: opts.Name, ttl: opts.TTL, retry: opts.RetryInterval}
}

// Acquire blocks until the lease for itemID is held or ctx is done. The
// returned context is cancelled with ErrLeaseLost if renewal finds the lease
// gone. release stops renewal and frees the lease; it is safe to call twice.
func (l *RunLease) Acquire(ctx context.Context, itemID string) (context.Context, func(), error) {
	log := logger.FromContext(ctx)
	holder := l.name + "/" + uuid.NewString()

	waiting := false
	for {
		ok, err := l.claim(ctx, itemID, holder)
		if err != nil {
			return nil, nil, fmt.Errorf("Acquire: %w", err)
		}
		if ok {
			break
		}
		if !waiting {
			log.Info().Str("item_id", itemID).Msg("Item is being exported by another process, waiting for its lease")
			waiting = true
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(leaseCtx, itemID, holder, stop, cancel)
	}()

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			cancel(nil)
			if err := l.free(context.WithoutCancel(ctx), itemID, holder); err != nil {
				log.Warn().Err(err).Str("item_id", itemID).Msg("Failed to release run lease")
			}
		})
	}
	return leaseCtx, release, nil
}

// claim takes the lease when it is free or expired.
func (l *RunLease) claim(ctx context.Context, itemID, holder string) (bool, error) {
	now := l.store.now()
	res, err := l.store.db.ExecContext(ctx, `
		INSERT INTO run_leases (item_id, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE run_leases.expires_at < ?`,
		itemID, holder, formatTime(now.Add(l.ttl)), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("claim lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim lease: %w", err)
	}
	return n > 0, nil
}

// renew extends a lease still held by holder and reports whether it was.
func (l *RunLease) renew(ctx context.Context, itemID, holder string) (bool, error) {
	res, err := l.store.db.ExecContext(ctx,
		`UPDATE run_leases SET expires_at = ? WHERE item_id = ? AND holder = ?`,
		formatTime(l.store.now().Add(l.ttl)), itemID, holder,
	)
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return n > 0, nil
}

func (l *RunLease) free(ctx context.Context, itemID, holder string) error {
	_, err := l.store.db.ExecContext(ctx,
		`DELETE FROM run_leases WHERE item_id = ? AND holder = ?`, itemID, holder)
	if err != nil {
		return fmt.Errorf("free lease: %w", err)
	}
	return nil
}

func (l *RunLease) keepAlive(ctx context.Context, itemID, holder string, stop <-chan struct{}, cancel context.CancelCauseFunc) {
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	renewedAt := l.store.now()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := l.renew(ctx, itemID, holder)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("item_id", itemID).Msg("Failed to renew run lease")
			if l.store.now().Sub(renewedAt) < l.ttl {
				continue
			}
			cancel(ErrLeaseLost)
			return
		case !held:
			log.Error().Str("item_id", itemID).Msg("Run lease taken over by another process")
			cancel(ErrLeaseLost)
			return
		}
		renewedAt = l.store.now()
	}
}
