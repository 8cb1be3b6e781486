package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasklift/autopilot/internal/models"
)

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()

	meta := &models.TaskMetadata{
		IsAutoProfile: true,
		PhaseModels: map[models.TaskPhase]string{
			models.PhaseCoding: "claude-sonnet",
			models.PhaseQA:     "glm-4.7",
		},
		PhaseThinking: map[models.TaskPhase]models.ThinkingLevel{
			models.PhaseCoding: models.ThinkingHigh,
		},
	}
	require.NoError(t, WriteTaskMetadata(dir, "spec-1", meta))

	got := ReadTaskMetadata(dir, "spec-1")
	require.NotNil(t, got)
	require.True(t, got.IsAutoProfile)
	require.Equal(t, "claude-sonnet", got.ModelForPhase(models.PhaseCoding))
	require.Equal(t, models.ThinkingHigh, got.ThinkingForPhase(models.PhaseCoding))
}

func TestReadMetadataMissingIsNil(t *testing.T) {
	require.Nil(t, ReadTaskMetadata(t.TempDir(), "nope"))
}

func TestReadMetadataUnparseableIsNil(t *testing.T) {
	dir := t.TempDir()
	path := MetadataPath(dir, "spec-1")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	require.Nil(t, ReadTaskMetadata(dir, "spec-1"))
}

func TestMetadataPathLayout(t *testing.T) {
	path := MetadataPath("/proj", "spec-7")
	require.Equal(t, filepath.Join("/proj", ".autopilot", "specs", "spec-7", "task_metadata.json"), path)
}
