package diagram

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MrWong99/chalkboard/internal/observe"
)

// Sweeper deletes stale diagram files from a directory.
type Sweeper struct {
	dir     string
	now     func() time.Time
	metrics *observe.Metrics
	log     *slog.Logger
}

// SweeperOption configures a [Sweeper].
type SweeperOption func(*Sweeper)

// WithClock replaces time.Now as the reference for file ages.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithSweepMetrics records deletions into m.
func WithSweepMetrics(m *observe.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithSweepLogger sets the logger used for per-file failures and scheduled
// runs. Defaults to [slog.Default].
func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.log = l }
}

// NewSweeper returns a Sweeper for dir. The directory need not exist.
func NewSweeper(dir string, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{dir: dir, now: time.Now, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sweep deletes every *.png directly inside the directory whose modification
// time is older than maxAge. A maxAge of zero or less deletes every *.png.
// A missing directory is not an error. Files that cannot be inspected or
// removed are skipped and reported in the joined error; the count covers
// only the files actually removed.
func (s *Sweeper) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("diagram: sweep %q: %w", s.dir, err)
	}

	cutoff := s.now().Add(-maxAge)
	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		if maxAge > 0 {
			info, err := e.Info()
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
		}
		err := os.Remove(filepath.Join(s.dir, e.Name()))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
			// Lost a race with a concurrent sweep.
		default:
			errs = append(errs, err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(context.Background(), removed)
	}
	if err := errors.Join(errs...); err != nil {
		return removed, fmt.Errorf("diagram: sweep %q: %w", s.dir, err)
	}
	return removed, nil
}

// Schedule runs Sweep(maxAge) on the given cron schedule (standard five-field
// syntax or descriptors such as "@every 10m") until stop is called. stop
// waits for a running sweep to finish.
func (s *Sweeper) Schedule(spec string, maxAge time.Duration) (stop func(), err error) {
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	if _, err := c.AddFunc(spec, func() { s.logged(maxAge) }); err != nil {
		return nil, fmt.Errorf("diagram: schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// Run is [Sweeper.Schedule] bound to ctx: it blocks until ctx is done, then
// stops the schedule. The returned error is nil on cancellation, which makes
// Run suitable for an errgroup.
func (s *Sweeper) Run(ctx context.Context, spec string, maxAge time.Duration) error {
	stop, err := s.Schedule(spec, maxAge)
	if err != nil {
		return err
	}
	<-ctx.Done()
	stop()
	return nil
}

func (s *Sweeper) logged(maxAge time.Duration) {
	n, err := s.Sweep(maxAge)
	if err != nil {
		s.log.Warn("diagram sweep incomplete", "dir", s.dir, "removed", n, "err", err)
		return
	}
	if n > 0 {
		s.log.Info("diagram sweep", "dir", s.dir, "removed", n)
	}
}

// ValidateSchedule reports whether spec is an acceptable sweep schedule.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("diagram: invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}
