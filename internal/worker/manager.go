// Package worker manages long-running background components with a
// shared lifecycle.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Worker is a background component with a managed lifecycle
type Worker interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// Manager starts and stops a set of workers together
type Manager struct {
	workers []Worker
	logger  *zap.Logger
}

// NewManager creates a new worker manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a worker to the managed set
func (m *Manager) Register(w Worker) {
	m.workers = append(m.workers, w)
}

// StartAll starts every registered worker in registration order. The
// first failure stops the ones already started and returns.
func (m *Manager) StartAll(ctx context.Context) error {
	for i, w := range m.workers {
		m.logger.Info("Starting worker", zap.String("worker", w.Name()))
		if err := w.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.workers[j].Stop(); stopErr != nil {
					m.logger.Error("Failed to stop worker during rollback",
						zap.String("worker", m.workers[j].Name()), zap.Error(stopErr))
				}
			}
			return fmt.Errorf("failed to start worker %s: %w", w.Name(), err)
		}
	}
	return nil
}

// StopAll stops workers in reverse registration order
func (m *Manager) StopAll() {
	for i := len(m.workers) - 1; i >= 0; i-- {
		w := m.workers[i]
		m.logger.Info("Stopping worker", zap.String("worker", w.Name()))
		if err := w.Stop(); err != nil {
			m.logger.Error("Failed to stop worker", zap.String("worker", w.Name()), zap.Error(err))
		}
	}
}
