package jobs

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/prima-scholar/scholar-hub/internal/domain/excellence"
	"github.com/prima-scholar/scholar-hub/pkg/logger"
	"github.com/prima-scholar/scholar-hub/pkg/timeutil"
)

// PruneJobName is the scheduler name of PruneTrajectoryJob.
const PruneJobName = "prune_trajectory"

// PruneTrajectoryJob deletes trajectory points older than the retention
// window. Cutoffs fall on UTC day boundaries.
type PruneTrajectoryJob struct {
	pruner    excellence.TrajectoryPruner
	retention time.Duration
	log       *logger.Logger
	clock     clock.Clock
}

// NewPruneTrajectoryJob creates a new retention job.
func NewPruneTrajectoryJob(pruner excellence.TrajectoryPruner, retention time.Duration, log *logger.Logger, clk clock.Clock) *PruneTrajectoryJob {
	if log == nil {
		log = logger.Nop()
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return &PruneTrajectoryJob{
		pruner:    pruner,
		retention: retention,
		log:       log.With(logger.JobName(PruneJobName)),
		clock:     clk,
	}
}

func (j *PruneTrajectoryJob) Name() string { return PruneJobName }

func (j *PruneTrajectoryJob) Description() string {
	return fmt.Sprintf("Prune trajectory points older than %s", j.retention)
}

// Run executes the job.
func (j *PruneTrajectoryJob) Run(ctx context.Context) error {
	cutoff := timeutil.RetentionCutoff(j.clock.Now(), j.retention)

	deleted, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune trajectory before %s: %w", timeutil.FormatDateStr(cutoff), err)
	}

	j.log.Info("trajectory pruned",
		logger.String("cutoff", timeutil.FormatDateStr(cutoff)),
		logger.Int64("deleted", deleted),
	)
	return nil
}
