package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tasklift/autopilot/internal/models"
)

// metadataFileName is the per-task side-channel file the worker writes
// next to the spec it operated on.
const metadataFileName = "task_metadata.json"

// MetadataPath returns the side-channel metadata file location for a
// task, keyed by project path and spec identifier.
func MetadataPath(projectDir, specID string) string {
	return filepath.Join(projectDir, ".autopilot", "specs", specID, metadataFileName)
}

// ReadTaskMetadata recovers the model/thinking configuration the worker
// recorded for a task. A missing or unparseable file is non-fatal and
// yields nil, meaning "use defaults".
func ReadTaskMetadata(projectDir, specID string) *models.TaskMetadata {
	data, err := os.ReadFile(MetadataPath(projectDir, specID))
	if err != nil {
		return nil
	}

	var meta models.TaskMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

// WriteTaskMetadata records the metadata file; used when chaining a
// spec-creation task into its follow-on execution step.
func WriteTaskMetadata(projectDir, specID string, meta *models.TaskMetadata) error {
	path := MetadataPath(projectDir, specID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
