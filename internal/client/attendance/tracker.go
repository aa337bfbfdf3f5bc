package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hrms-backend-go/internal/domain/employee"
	"github.com/cmlabs-hris/hrms-backend-go/internal/pkg/clock"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTickInterval    = time.Second
	DefaultRefetchInterval = 30 * time.Second
)

// StatusSource is what the tracker polls. *Client implements it.
type StatusSource interface {
	MyStatus(ctx context.Context) (attendance.MyStatusResponse, error)
}

// Snapshot is the last record the server returned. It is never mutated
// after it is stored.
type Snapshot struct {
	Record            attendance.Record
	Employee          employee.SummaryResponse
	ForgottenCheckout *attendance.Record
	FetchedAt         time.Time

	// ServerOffset is server time minus local time at fetch.
	ServerOffset time.Duration
}

// View is what a renderer draws on each tick.
type View struct {
	Snapshot   *Snapshot
	Projection attendance.Projection

	// Stale is set while refetches are failing and the last good snapshot
	// is still being shown.
	Stale bool
}

type TrackerOptions struct {
	Clock           clock.Clock
	TickInterval    time.Duration
	RefetchInterval time.Duration
	Logger          *slog.Logger
}

// Tracker runs two independent loops: a fast tick that renders a projection
// of the current snapshot and a slow refetch that replaces it. The loops
// share only the atomically swapped snapshot.
type Tracker struct {
	source   StatusSource
	clock    clock.Clock
	tick     time.Duration
	refetch  time.Duration
	logger   *slog.Logger
	snapshot atomic.Pointer[Snapshot]
	failures atomic.Int64
}

func NewTracker(source StatusSource, opts TrackerOptions) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.New(time.Local)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.RefetchInterval <= 0 {
		opts.RefetchInterval = DefaultRefetchInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		source:  source,
		clock:   opts.Clock,
		tick:    opts.TickInterval,
		refetch: opts.RefetchInterval,
		logger:  opts.Logger,
	}
}

// Snapshot returns the current snapshot, nil before the first fetch.
func (t *Tracker) Snapshot() *Snapshot {
	return t.snapshot.Load()
}

// Refresh fetches my-status and swaps the snapshot in. On failure the old
// snapshot stays.
func (t *Tracker) Refresh(ctx context.Context) error {
	status, err := t.source.MyStatus(ctx)
	if err != nil {
		n := t.failures.Add(1)
		t.logger.Warn("attendance refetch failed, keeping last snapshot", "error", err, "consecutive_failures", n)
		return fmt.Errorf("refresh attendance: %w", err)
	}
	t.failures.Store(0)

	now := t.clock.Now()
	snap := &Snapshot{
		Record:    status.Attendance.Record(),
		Employee:  status.Employee,
		FetchedAt: now,
	}
	if !status.ServerTime.IsZero() {
		snap.ServerOffset = status.ServerTime.Sub(now)
	}
	if status.ForgottenCheckout != nil {
		forgotten := status.ForgottenCheckout.Record()
		snap.ForgottenCheckout = &forgotten
	}
	t.snapshot.Store(snap)
	return nil
}

// Replace swaps in a record returned by a successful command, keeping the
// profile from the previous snapshot.
func (t *Tracker) Replace(resp attendance.AttendanceResponse) {
	now := t.clock.Now()
	snap := &Snapshot{Record: resp.Record(), FetchedAt: now}
	if prev := t.snapshot.Load(); prev != nil {
		snap.Employee = prev.Employee
		snap.ForgottenCheckout = prev.ForgottenCheckout
		snap.ServerOffset = prev.ServerOffset
	}
	t.snapshot.Store(snap)
}

// ViewAt projects the current snapshot at local time now.
func (t *Tracker) ViewAt(now time.Time) View {
	snap := t.snapshot.Load()
	v := View{Snapshot: snap, Stale: t.failures.Load() > 0}
	if snap == nil {
		v.Projection = attendance.Project(nil, now)
		return v
	}
	v.Projection = attendance.Project(&snap.Record, now.Add(snap.ServerOffset))
	return v
}

// Run refreshes once and then drives both loops until ctx is done. render is
// called from the tick loop only.
func (t *Tracker) Run(ctx context.Context, render func(View)) error {
	_ = t.Refresh(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(t.tick)
		defer ticker.Stop()
		render(t.ViewAt(t.clock.Now()))
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				render(t.ViewAt(t.clock.Now()))
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(t.refetch)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				// Failures are logged and the last snapshot keeps ticking.
				_ = t.Refresh(gctx)
			}
		}
	})

	return g.Wait()
}

// FormatSeconds renders seconds as HH:MM:SS.
func FormatSeconds(s int64) string {
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
