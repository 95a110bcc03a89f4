package deadline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
	"github.com/projectsmartedu/SmartEducation-sub001/core/progress"
)

type (
	// OverdueLister lists the (student, topic) pairs overdue past grace.
	OverdueLister interface {
		OverdueKeys(ctx context.Context) ([]progress.Key, error)
	}

	Decayer interface {
		Decay(ctx context.Context, keys []progress.Key) (int, error)
	}
)

// Runner drives the periodic jobs: the deadline scan and, when enabled, mastery decay.
// Each job runs in singleton mode, so a slow run is never overlapped by the next tick.
type Runner struct {
	conf      *core.Config
	scheduler *gocron.Scheduler
	scanner   *Scanner
	overdue   OverdueLister
	decayer   Decayer
	logger    core.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRunner(conf *core.Config, scanner *Scanner, overdue OverdueLister, decayer Decayer, logger core.Logger) *Runner {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		conf:      conf,
		scheduler: s,
		scanner:   scanner,
		overdue:   overdue,
		decayer:   decayer,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the jobs and runs them in the background.
func (r *Runner) Start() error {
	if r.conf.Deadline.Enabled {
		if _, err := r.scheduler.Every(r.conf.Deadline.ScanInterval).Do(r.Scan); err != nil {
			return errors.Wrap(err, "scheduling deadline scan")
		}
	}
	if r.conf.Mastery.DecayRate > 0 {
		if _, err := r.scheduler.Every(r.conf.Mastery.DecayInterval).WaitForSchedule().Do(r.Decay); err != nil {
			return errors.Wrap(err, "scheduling mastery decay")
		}
	}
	r.scheduler.StartAsync()
	return nil
}

// Stop cancels running jobs between records and stops the scheduler.
func (r *Runner) Stop() {
	r.cancel()
	r.scheduler.Stop()
}

// Scan runs one deadline scan. A failed scan is logged and retried on the next tick.
func (r *Runner) Scan() {
	res, err := r.scanner.Scan(r.ctx)
	if err != nil {
		if errors.Cause(err) == context.Canceled {
			return
		}
		r.logger.Error("deadline scan failed", err)
		return
	}
	if res.Alerts > 0 || res.Failed > 0 {
		r.logger.Info(fmt.Sprintf(
			"deadline scan: %d scanned, %d alerts, %d raced, %d failed, %d dispatch failures",
			res.Scanned, res.Alerts, res.Raced, res.Failed, res.DispatchFailures,
		))
	}
}

// Decay lowers the mastery of overdue topics once.
func (r *Runner) Decay() {
	keys, err := r.overdue.OverdueKeys(r.ctx)
	if err != nil {
		r.logger.Error("listing overdue revisions for decay", err)
		return
	}
	n, err := r.decayer.Decay(r.ctx, keys)
	if err != nil {
		if errors.Cause(err) == context.Canceled {
			return
		}
		r.logger.Error("mastery decay failed", err)
		return
	}
	if n > 0 {
		r.logger.Info(fmt.Sprintf("mastery decay: %d entries lowered", n))
	}
}
