package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	log      *[]string
}

func (w *fakeWorker) Name() string { return w.name }

func (w *fakeWorker) Start(ctx context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}
	*w.log = append(*w.log, "start:"+w.name)
	return nil
}

func (w *fakeWorker) Stop() error {
	*w.log = append(*w.log, "stop:"+w.name)
	return nil
}

func TestManager_StartAndStopOrder(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", log: &log})
	m.Register(&fakeWorker{name: "b", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	m.StopAll()

	// Stops run in reverse registration order
	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, log)
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	var log []string
	m := NewManager(zap.NewNop())
	m.Register(&fakeWorker{name: "a", log: &log})
	m.Register(&fakeWorker{name: "b", startErr: errors.New("boom"), log: &log})
	m.Register(&fakeWorker{name: "c", log: &log})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker b")

	// Only the already-started worker was stopped; c never started
	assert.Equal(t, []string{"start:a", "stop:a"}, log)
}
