package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestEmit_WritesReportFile(t *testing.T) {
	emitter := NewEmitter(getTestLogger())
	path := filepath.Join(t.TempDir(), "report.json")

	rep := &models.RunReport{
		WorkspaceID:         "ws-1",
		StartedAt:           time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		FinishedAt:          time.Date(2026, 1, 15, 9, 2, 0, 0, time.UTC),
		CandidatesEvaluated: 3,
		Merged:              1,
		MergeRecords: []models.MergeRecord{
			{WorkspaceID: "ws-1", SourceID: "org-2", DestinationID: "org-1", Score: 0.93, Strategy: models.MergeStrategyFuzzyName},
		},
		OrphansSeen:       2,
		OrphansUnresolved: []string{"act-9"},
	}

	require.NoError(t, emitter.Emit(context.Background(), rep, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded models.RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ws-1", decoded.WorkspaceID)
	assert.Equal(t, 1, decoded.Merged)
	require.Len(t, decoded.MergeRecords, 1)
	assert.Equal(t, "org-2", decoded.MergeRecords[0].SourceID)
	assert.Equal(t, []string{"act-9"}, decoded.OrphansUnresolved)

	// the temp file used for the atomic write is gone
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.json", entries[0].Name())
}

func TestEmit_EmptyPathOnlyLogs(t *testing.T) {
	var logged []ectologger.EctoLogMessage
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		logged = append(logged, msg)
	})
	emitter := NewEmitter(logger)

	require.NoError(t, emitter.Emit(context.Background(), &models.RunReport{WorkspaceID: "ws-1"}, ""))
	assert.NotEmpty(t, logged)
}

func TestEmit_UnwritableDirectory(t *testing.T) {
	emitter := NewEmitter(getTestLogger())

	err := emitter.Emit(context.Background(), &models.RunReport{WorkspaceID: "ws-1"}, "/nonexistent-dir/report.json")
	require.Error(t, err)
}
