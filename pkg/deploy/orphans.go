package deploy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalratel/peleka/pkg/runtime"
)

// OrphanReport summarizes one orphan sweep: how many managed containers
// were found beyond the one the caller wants kept, and how many were
// successfully removed.
type OrphanReport struct {
	Found   int
	Removed int
	Failed  int
}

// SweepOrphans removes every container labeled as managed for service
// except keep, stopping each with a short timeout before removing it.
// Individual failures are logged and counted, never fatal to the sweep:
// a single stuck container should not block the rest of the cleanup.
func (d *Deployer) SweepOrphans(ctx context.Context, service string, keep ...string) (OrphanReport, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	containers, err := d.rt.List(ctx, runtime.ListFilters{
		Labels: map[string]string{LabelManaged: "true", LabelService: service},
		All:    true,
	})
	if err != nil {
		return OrphanReport{}, newError(KindContainerRemoveFailed, "listing containers for orphan sweep", err)
	}

	var report OrphanReport
	for _, c := range containers {
		if _, ok := keepSet[c.ID.String()]; ok {
			continue
		}

		report.Found++
		log := d.log.With().Str("container_id", c.ID.String()).Str("container_name", c.Name).Logger()

		if err := d.rt.Stop(ctx, c.ID, 10*time.Second); err != nil {
			log.Debug().Err(err).Msg("stopping orphaned container")
		}

		if err := d.rt.RemoveContainer(ctx, c.ID, true); err != nil {
			log.Warn().Err(err).Msg("failed to remove orphaned container")
			report.Failed++
			continue
		}

		log.Info().Msg("removed orphaned container")
		report.Removed++
	}

	return report, nil
}

// logOrphanReport is a small helper for callers that want a single
// summary line instead of inspecting the struct themselves.
func logOrphanReport(log zerolog.Logger, service string, report OrphanReport) {
	log.Info().
		Str("service", service).
		Int("found", report.Found).
		Int("removed", report.Removed).
		Int("failed", report.Failed).
		Msg("orphan sweep complete")
}
