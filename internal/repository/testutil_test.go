package repository

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guardhq/renewal-workflow/internal/models"
	"github.com/guardhq/renewal-workflow/internal/workflow"
	"github.com/guardhq/renewal-workflow/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations("../../migrations"))
	return db
}

func newTestInstance(t *testing.T, repo *InstanceRepository, state workflow.State) *models.WorkflowInstance {
	t.Helper()
	inst := &models.WorkflowInstance{
		UID:         uuid.NewString(),
		EmployeeID:  "emp-" + uuid.NewString()[:8],
		PhoneNumber: "+1555" + uuid.NewString()[:7],
		State:       state,
		Version:     1,
	}
	require.NoError(t, repo.Create(nil, inst))
	return inst
}
