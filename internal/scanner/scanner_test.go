package scanner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/dispatcher"
	"github.com/guardhq/renewal-workflow/internal/engine"
	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/repository"
	"github.com/guardhq/renewal-workflow/internal/workflow"
	"github.com/guardhq/renewal-workflow/pkg/database"
)

type noopGateway struct{}

func (noopGateway) Extract(ctx context.Context, documentURL, documentType string) workflow.ExtractionOutcome {
	return workflow.ExtractionOutcome{Kind: workflow.ResultPermanentError}
}

func (noopGateway) ClassifyIntent(ctx context.Context, text string, stateContext workflow.State) workflow.IntentOutcome {
	return workflow.IntentOutcome{Intent: workflow.IntentUnknown}
}

type noopPorts struct{}

func (noopPorts) SendText(ctx context.Context, recipient, body string) error { return nil }
func (noopPorts) SyncLicense(ctx context.Context, employeeID string, payload map[string]any) error {
	return nil
}
func (noopPorts) Notify(ctx context.Context, instanceUID, reason string) error { return nil }
func (noopPorts) RequestSubmission(ctx context.Context, instanceUID string, payload map[string]any) error {
	return nil
}

func newScannerEnv(t *testing.T) (*Scanner, *repository.InstanceRepository) {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations("../../migrations"))

	instances := repository.NewInstanceRepository(db.DB, logger)
	events := repository.NewEventRepository(db.DB, logger)
	documents := repository.NewDocumentRepository(db.DB, logger)
	confirmations := repository.NewConfirmationRepository(db.DB, logger)
	dispatches := repository.NewDispatchRepository(db.DB, logger)

	ports := noopPorts{}
	retry := &dispatcher.RetryStrategy{MaxAttempts: 1, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	disp := dispatcher.New(ports, ports, ports, ports, dispatches, events, retry, logger)

	rules := workflow.Rules{ConfidenceThreshold: 0.7, MaxReminders: 3, MaxSubmissionRetries: 1}
	eng := engine.New(db, instances, events, documents, confirmations, noopGateway{}, disp, rules, logger)

	// Zero staleness: everything qualifies on the next sweep
	return New(instances, eng, time.Minute, 0, logger), instances
}

func createInstance(t *testing.T, instances *repository.InstanceRepository, state workflow.State) *models.WorkflowInstance {
	t.Helper()
	inst := &models.WorkflowInstance{
		UID:         "inst-" + string(state),
		EmployeeID:  "emp-" + string(state),
		PhoneNumber: "+1555" + string(state),
		State:       state,
		Version:     1,
	}
	require.NoError(t, instances.Create(nil, inst))
	return inst
}

func TestScanner_SweepFiresReminder(t *testing.T) {
	s, instances := newScannerEnv(t)
	inst := createInstance(t, instances, workflow.StateAwaitingPhoto)

	// FindStale compares against updated_at; make it clearly old
	time.Sleep(1100 * time.Millisecond)
	s.Sweep(context.Background())

	got, err := instances.GetByID(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateAwaitingPhoto, got.State)
	assert.Equal(t, 1, got.ReminderCount)
}

func TestScanner_SweepSkipsTerminalAndEscalated(t *testing.T) {
	s, instances := newScannerEnv(t)
	done := createInstance(t, instances, workflow.StateCompleted)
	escalated := createInstance(t, instances, workflow.StateEscalated)

	time.Sleep(1100 * time.Millisecond)
	s.Sweep(context.Background())

	got, err := instances.GetByID(done.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateCompleted, got.State)
	assert.Equal(t, 0, got.ReminderCount)

	got, err = instances.GetByID(escalated.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateEscalated, got.State)
	assert.Equal(t, 0, got.ReminderCount)
}

func TestScanner_StartAndStop(t *testing.T) {
	s, _ := newScannerEnv(t)

	require.NoError(t, s.Start(context.Background()))
	// Starting twice is a no-op
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	assert.Equal(t, "timeout-scanner", s.Name())
}
