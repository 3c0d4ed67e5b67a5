package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const pruneTimeout = time.Minute

// Pruner deletes journal rows older than the retention window on a cron
// schedule. Schedules use the six-field form with seconds, for example
// "0 0 3 * * *" for 03:00 daily.
type Pruner struct {
	repo      Repository
	retention time.Duration
	cron      *cron.Cron
	logger    Logger
}

// NewPruner validates schedule and returns a stopped pruner.
func NewPruner(repo Repository, schedule string, retention time.Duration) (*Pruner, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	p := &Pruner{
		repo:      repo,
		retention: retention,
		cron:      cron.New(cron.WithSeconds()),
		logger:    noopLogger{},
	}
	if _, err := p.cron.AddFunc(schedule, func() { p.PruneNow(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parsing prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// SetLogger sets the logger for the pruner.
func (p *Pruner) SetLogger(logger Logger) {
	p.logger = logger
}

// PruneNow runs one prune pass and returns the rows removed.
func (p *Pruner) PruneNow(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	n, err := p.repo.Prune(ctx, p.retention)
	if err != nil {
		p.logger.Error("history prune failed", "error", err)
		return 0
	}
	if n > 0 {
		p.logger.Info("history pruned", "rows", n, "retention", p.retention.String())
	}
	return n
}

// Run starts the schedule and blocks until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) error {
	p.cron.Start()
	<-ctx.Done()
	<-p.cron.Stop().Done()
	return nil
}
