// Package scanner periodically sweeps for instances stuck in a waiting
// state and logs timeout events so the engine can remind or escalate.
package scanner

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/engine"
	"github.com/guardhq/renewal-workflow/internal/repository"
	"github.com/guardhq/renewal-workflow/internal/workflow"
)

// scannedStates are the states where a stalled instance needs a nudge:
// employee-wait states get reminders, agent-side states alert a
// supervisor.
var scannedStates = []workflow.State{
	workflow.StateAwaitingPhoto,
	workflow.StatePhotoUploaded,
	workflow.StateAwaitingTraining,
	workflow.StateTrainingUploaded,
	workflow.StateReadyForSubmission,
	workflow.StateAwaitingSubmission,
	workflow.StateAwaitingApproval,
}

const staleBatchSize = 50

// Scanner is the timeout sweep worker
type Scanner struct {
	instances  *repository.InstanceRepository
	engine     *engine.Engine
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active bool
}

// New creates a new timeout scanner
func New(instances *repository.InstanceRepository, eng *engine.Engine, interval, staleAfter time.Duration, logger *zap.Logger) *Scanner {
	return &Scanner{
		instances:  instances,
		engine:     eng,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Name returns the worker name
func (s *Scanner) Name() string {
	return "timeout-scanner"
}

// Start begins the periodic sweep
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.active = true

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Timeout scanner started",
		zap.Duration("interval", s.interval),
		zap.Duration("stale_after", s.staleAfter))
	return nil
}

// Stop halts the sweep and waits for an in-flight pass to finish
func (s *Scanner) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}

	s.cancel()
	s.wg.Wait()
	s.active = false

	s.logger.Info("Timeout scanner stopped")
	return nil
}

func (s *Scanner) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every scanned state, logging a timeout event
// for each stale instance found.
func (s *Scanner) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.staleAfter)

	for _, state := range scannedStates {
		stale, err := s.instances.FindStale(state, cutoff, staleBatchSize)
		if err != nil {
			s.logger.Error("Stale instance lookup failed",
				zap.String("state", string(state)), zap.Error(err))
			continue
		}

		for _, inst := range stale {
			if ctx.Err() != nil {
				return
			}

			staleFor := time.Since(inst.UpdatedAt)
			s.logger.Info("Instance stale, firing timeout",
				zap.String("uid", inst.UID),
				zap.String("state", string(inst.State)),
				zap.Duration("stale_for", staleFor))

			if err := s.engine.RecordTimeout(ctx, inst.ID, inst.State, staleFor.Hours()); err != nil {
				s.logger.Error("Timeout processing failed",
					zap.String("uid", inst.UID), zap.Error(err))
			}
		}
	}
}
