package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultOverdueSchedule = "0 6 * * *"
	DefaultExpirySchedule  = "30 6 * * *"
	DefaultCleanupSchedule = "@hourly"
)

// OverdueMarker flags unpaid invoices past their due date.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// GalleryArchiver archives galleries past their expiry.
type GalleryArchiver interface {
	ArchiveExpired(ctx context.Context) (int, error)
}

// MarkerCleaner drops expired webhook markers.
type MarkerCleaner interface {
	Cleanup() int
}

type ScheduleConfig struct {
	Overdue  string
	Expiry   string
	Cleanup  string
	Location *time.Location
}

// Scheduler runs the periodic sweeps.
type Scheduler struct {
	invoices  OverdueMarker
	galleries GalleryArchiver
	cleaner   MarkerCleaner
	cfg       ScheduleConfig
	cron      *cron.Cron
	now       func() time.Time
}

// NewScheduler creates a scheduler. cleaner may be nil when webhook markers
// expire on their own.
func NewScheduler(invoices OverdueMarker, galleries GalleryArchiver, cleaner MarkerCleaner, cfg ScheduleConfig) *Scheduler {
	if cfg.Overdue == "" {
		cfg.Overdue = DefaultOverdueSchedule
	}
	if cfg.Expiry == "" {
		cfg.Expiry = DefaultExpirySchedule
	}
	if cfg.Cleanup == "" {
		cfg.Cleanup = DefaultCleanupSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		invoices:  invoices,
		galleries: galleries,
		cleaner:   cleaner,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Start registers the jobs and starts the cron runner. Jobs run with ctx
// until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if _, err := c.AddFunc(s.cfg.Overdue, func() { s.logResult("overdue", s.SweepOverdue(ctx)) }); err != nil {
		return fmt.Errorf("invalid overdue schedule %q: %w", s.cfg.Overdue, err)
	}
	if _, err := c.AddFunc(s.cfg.Expiry, func() { s.logResult("gallery_expiry", s.SweepExpired(ctx)) }); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", s.cfg.Expiry, err)
	}
	if s.cleaner != nil {
		if _, err := c.AddFunc(s.cfg.Cleanup, func() { s.CleanupMarkers() }); err != nil {
			return fmt.Errorf("invalid cleanup schedule %q: %w", s.cfg.Cleanup, err)
		}
	}

	s.cron = c
	c.Start()

	log.Info().
		Str("overdue", s.cfg.Overdue).
		Str("expiry", s.cfg.Expiry).
		Str("location", s.cfg.Location.String()).
		Msg("Automation scheduler started")
	return nil
}

// Stop halts the runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce runs every sweep immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	err := errors.Join(s.SweepOverdue(ctx), s.SweepExpired(ctx))
	if s.cleaner != nil {
		s.CleanupMarkers()
	}
	return err
}

func (s *Scheduler) SweepOverdue(ctx context.Context) error {
	n, err := s.invoices.MarkOverdue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("overdue sweep failed: %w", err)
	}
	log.Info().Int("invoices", n).Msg("Overdue sweep complete")
	return nil
}

func (s *Scheduler) SweepExpired(ctx context.Context) error {
	n, err := s.galleries.ArchiveExpired(ctx)
	if err != nil {
		return fmt.Errorf("gallery expiry sweep failed: %w", err)
	}
	log.Info().Int("galleries", n).Msg("Gallery expiry sweep complete")
	return nil
}

func (s *Scheduler) CleanupMarkers() {
	n := s.cleaner.Cleanup()
	log.Debug().Int("markers", n).Msg("Webhook markers cleaned up")
}

func (s *Scheduler) logResult(job string, err error) {
	if err != nil {
		log.Error().Err(err).Str("job", job).Msg("Scheduled job failed")
	}
}
