package registry

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/rpch-net/discovery-platform/internal/core"
	"github.com/rpch-net/discovery-platform/internal/domain/node"
	"github.com/rpch-net/discovery-platform/internal/metrics"
	"github.com/rpch-net/discovery-platform/internal/system"
	"github.com/rpch-net/discovery-platform/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// Sweeper periodically re-verifies the commitment of every FRESH node and
// marks nodes that fail the policy as UNUSABLE. Verification runs outside any
// registry lock: the indexer is slow and possibly unavailable, so it must
// never block the hot read path, and an indeterminate outcome leaves the node
// untouched until the next scheduled sweep.
type Sweeper struct {
	service  *Service
	checker  CommitmentChecker
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a commitment sweeper. The schedule uses cron syntax,
// e.g. "@every 5m".
func NewSweeper(service *Service, checker CommitmentChecker, schedule string, log *logger.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if log == nil {
		log = logger.NewDefault("commitment-sweeper")
	}
	return &Sweeper{
		service:  service,
		checker:  checker,
		schedule: schedule,
		log:      log,
	}
}

func (s *Sweeper) Name() string { return "commitment-sweeper" }

// Start schedules the sweep. The first run happens at the first schedule
// boundary, not immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("commitment sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("commitment sweeper stopped")
	return nil
}

// Sweep runs one verification pass. Failures are logged and counted, never
// fatal; the node set is retried on the next scheduled sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.checker == nil {
		return
	}

	fresh := node.StatusFresh
	nodes, err := s.service.List(ctx, node.Filter{Status: &fresh})
	if err != nil {
		s.log.WithError(err).Warn("commitment sweep could not list nodes")
		metrics.SweepResults.WithLabelValues("list_failed").Inc()
		return
	}

	for _, n := range nodes {
		committed, err := s.checker.CheckCommitment(ctx, n.ID)
		switch {
		case core.IsIndeterminate(err):
			// Indexer unavailability is not proof of non-commitment.
			s.log.WithError(err).
				WithField("node_id", n.ID).
				Warn("commitment check indeterminate, leaving node status untouched")
			metrics.SweepResults.WithLabelValues("indeterminate").Inc()
		case err != nil:
			s.log.WithError(err).
				WithField("node_id", n.ID).
				Warn("commitment check failed")
			metrics.SweepResults.WithLabelValues("error").Inc()
		case committed:
			metrics.SweepResults.WithLabelValues("committed").Inc()
		default:
			if _, err := s.service.MarkUnusable(ctx, n.ID); err != nil {
				s.log.WithError(err).
					WithField("node_id", n.ID).
					Warn("could not mark node unusable")
				metrics.SweepResults.WithLabelValues("error").Inc()
				continue
			}
			metrics.SweepResults.WithLabelValues("unusable").Inc()
		}
	}
	s.log.WithField("nodes", len(nodes)).Debug("commitment sweep finished")
}
