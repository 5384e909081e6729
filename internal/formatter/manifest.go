package formatter

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/desertthunder/curate/internal/shared"
)

// Manifest summarizes a batch of runs and the report files written for them.
type Manifest struct {
	GeneratedAt     time.Time       `json:"generatedAt"`
	Format          string          `json:"format"`
	OutputDirectory string          `json:"outputDirectory"`
	Total           int             `json:"total"`
	Succeeded       int             `json:"succeeded"`
	Failed          int             `json:"failed"`
	Entries         []ManifestEntry `json:"entries"`
}

// ManifestEntry is one seed of a batch.
type ManifestEntry struct {
	Seed         string `json:"seed"`
	RunID        string `json:"runId,omitempty"`
	PlaylistID   string `json:"playlistId,omitempty"`
	PlaylistName string `json:"playlistName,omitempty"`
	AddedCount   int    `json:"addedCount"`
	ErrorCount   int    `json:"errorCount"`
	ReportFile   string `json:"reportFile,omitempty"`
	Error        string `json:"error,omitempty"`
}

// WriteManifest writes the manifest as indented JSON at path.
func WriteManifest(m *Manifest, path string) error {
	if m == nil {
		return fmt.Errorf("%w: manifest is nil", shared.ErrInvalidArgument)
	}
	data, err := shared.MarshalJSON(m, true)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
