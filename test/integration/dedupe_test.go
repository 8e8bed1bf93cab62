package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/repositories/activity"
	"github.com/Ramsey-B/clover/internal/repositories/mergerecord"
	"github.com/Ramsey-B/clover/internal/repositories/organization"
	"github.com/Ramsey-B/clover/internal/repositories/person"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/linker"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// setupTestDB connects to the database named by the environment, skipping
// the test when none is configured. Migrations must already be applied.
func setupTestDB(t *testing.T) database.DB {
	t.Helper()

	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("Database not configured, set DB_HOST to run integration tests")
	}

	cfg := database.ConnectConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            envOr("DB_PORT", "5432"),
		User:            envOr("DB_USER", "postgres"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            envOr("DB_NAME", "clover_test"),
		SSLMode:         envOr("DB_SSL_MODE", "disable"),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}

	db, err := database.Connect(context.Background(), cfg, getTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// cleanupWorkspace removes every row tied to the test workspace.
func cleanupWorkspace(t *testing.T, db database.DB, workspaceID string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range []string{"activities", "merge_records", "people", "organizations"} {
		_, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE workspace_id = $1", table), workspaceID)
		assert.NoError(t, err)
	}
}

func TestDedupeRun_EndToEnd(t *testing.T) {
	db := setupTestDB(t)
	logger := getTestLogger()
	ctx := context.Background()

	workspaceID := "itest-" + uuid.NewString()
	t.Cleanup(func() { cleanupWorkspace(t, db, workspaceID) })

	orgRepo := organization.NewRepository(db, logger)
	personRepo := person.NewRepository(db, logger)
	activityRepo := activity.NewRepository(db, logger)
	recordRepo := mergerecord.NewRepository(db, logger)

	// two spellings of the same company plus an unrelated one
	acme, err := orgRepo.Create(ctx, &models.Organization{WorkspaceID: workspaceID, Name: "Acme Inc."})
	require.NoError(t, err)
	acmeDupe, err := orgRepo.Create(ctx, &models.Organization{WorkspaceID: workspaceID, Name: "ACME, Inc", Domain: strptr("acme.com")})
	require.NoError(t, err)
	_, err = orgRepo.Create(ctx, &models.Organization{WorkspaceID: workspaceID, Name: "Globex Corp"})
	require.NoError(t, err)

	// a person on each spelling so the survivor absorbs one of them
	john, err := personRepo.Create(ctx, &models.Person{
		WorkspaceID:    workspaceID,
		FullName:       "John Doe",
		Email:          strptr("john.doe@acme.com"),
		OrganizationID: &acme.ID,
	})
	require.NoError(t, err)
	_, err = personRepo.Create(ctx, &models.Person{
		WorkspaceID:    workspaceID,
		FullName:       "Jane Roe",
		Email:          strptr("jane.roe@acme.com"),
		OrganizationID: &acmeDupe.ID,
	})
	require.NoError(t, err)

	// one orphan resolvable by identifier, one unresolvable
	orphaned, err := activityRepo.Create(ctx, &models.Activity{
		WorkspaceID: workspaceID,
		Type:        models.ActivityTypeCall,
		Content:     "Call with john.doe@acme.com about renewal pricing",
	})
	require.NoError(t, err)
	_, err = activityRepo.Create(ctx, &models.Activity{
		WorkspaceID: workspaceID,
		Type:        "custom",
		Content:     "nothing extractable here",
	})
	require.NoError(t, err)

	executor := merging.NewExecutor(db, orgRepo, personRepo, activityRepo, recordRepo, logger)
	identityLinker := linker.NewLinker(db, personRepo, orgRepo, activityRepo, logger)
	runner := dedupe.NewRunner(orgRepo, personRepo, activityRepo, executor, identityLinker, nil, nil, logger)

	rep, err := runner.Run(ctx, models.RunParams{WorkspaceID: workspaceID})
	require.NoError(t, err)

	// the two acme spellings merged, globex untouched
	require.Equal(t, 1, rep.Merged)
	require.Len(t, rep.MergeRecords, 1)
	record := rep.MergeRecords[0]
	survivorID := record.DestinationID
	mergedID := record.SourceID
	assert.ElementsMatch(t, []string{acme.ID, acmeDupe.ID}, []string{survivorID, mergedID})

	survivor, err := orgRepo.Get(ctx, workspaceID, survivorID)
	require.NoError(t, err)
	assert.Equal(t, 2, survivor.PeopleCount, "both people follow the survivor")
	require.NotNil(t, survivor.Domain, "scalar gap filled from the duplicate")
	assert.Equal(t, "acme.com", *survivor.Domain)

	_, err = orgRepo.Get(ctx, workspaceID, mergedID)
	require.Error(t, err, "the duplicate is tombstoned")

	records, err := recordRepo.ListByDestination(ctx, workspaceID, survivorID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, mergedID, records[0].SourceID)

	// orphan accounting: one linked by identifier, one left for review
	assert.Equal(t, 2, rep.OrphansSeen)
	require.Len(t, rep.OrphansResolved, 1)
	assert.Equal(t, orphaned.ID, rep.OrphansResolved[0].ActivityID)
	assert.Equal(t, linker.StrategyExactIdentifier, rep.OrphansResolved[0].Strategy)
	assert.Len(t, rep.OrphansUnresolved, 1)

	linked, err := activityRepo.Get(ctx, workspaceID, orphaned.ID)
	require.NoError(t, err)
	require.NotNil(t, linked.PersonID)
	assert.Equal(t, john.ID, *linked.PersonID)

	// a second run finds nothing left to merge
	rep2, err := runner.Run(ctx, models.RunParams{WorkspaceID: workspaceID})
	require.NoError(t, err)
	assert.Equal(t, 0, rep2.Merged)
}

func TestDedupeRun_DryRunLeavesDataUntouched(t *testing.T) {
	db := setupTestDB(t)
	logger := getTestLogger()
	ctx := context.Background()

	workspaceID := "itest-" + uuid.NewString()
	t.Cleanup(func() { cleanupWorkspace(t, db, workspaceID) })

	orgRepo := organization.NewRepository(db, logger)
	personRepo := person.NewRepository(db, logger)
	activityRepo := activity.NewRepository(db, logger)
	recordRepo := mergerecord.NewRepository(db, logger)

	a, err := orgRepo.Create(ctx, &models.Organization{WorkspaceID: workspaceID, Name: "Initech LLC"})
	require.NoError(t, err)
	b, err := orgRepo.Create(ctx, &models.Organization{WorkspaceID: workspaceID, Name: "Initech, LLC."})
	require.NoError(t, err)

	executor := merging.NewExecutor(db, orgRepo, personRepo, activityRepo, recordRepo, logger)
	identityLinker := linker.NewLinker(db, personRepo, orgRepo, activityRepo, logger)
	runner := dedupe.NewRunner(orgRepo, personRepo, activityRepo, executor, identityLinker, nil, nil, logger)

	rep, err := runner.Run(ctx, models.RunParams{WorkspaceID: workspaceID, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Merged)
	require.Len(t, rep.MergeRecords, 1)
	assert.Zero(t, rep.MergeRecords[0].ID, "dry run records are never persisted")

	// both organizations still live
	_, err = orgRepo.Get(ctx, workspaceID, a.ID)
	assert.NoError(t, err)
	_, err = orgRepo.Get(ctx, workspaceID, b.ID)
	assert.NoError(t, err)
}

func strptr(s string) *string { return &s }
