package formatter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tordrt/schemamap/internal/schema"
)

// Artifact base names used when the configuration leaves them empty
const (
	DefaultStructureFile     = "db_structure"
	DefaultRelationshipsFile = "db_relationships"
	DefaultStatsFile         = "db_stats"

	inferredSuffix = "_inferred"
)

// Bundle names the files of one run, without extension
type Bundle struct {
	StructureFile     string
	RelationshipsFile string
	StatsFile         string
}

func (b Bundle) withDefaults() Bundle {
	if b.StructureFile == "" {
		b.StructureFile = DefaultStructureFile
	}
	if b.RelationshipsFile == "" {
		b.RelationshipsFile = DefaultRelationshipsFile
	}
	if b.StatsFile == "" {
		b.StatsFile = DefaultStatsFile
	}
	return b
}

// MultiFileWriter writes the artifacts of a run into a directory
type MultiFileWriter struct {
	OutputDir string
	Format    Format
	Bundle    Bundle
}

// NewMultiFileWriter creates a new multi-file writer
func NewMultiFileWriter(outputDir string, format Format, bundle Bundle) *MultiFileWriter {
	if outputDir == "" {
		outputDir = "."
	}
	return &MultiFileWriter{
		OutputDir: outputDir,
		Format:    format,
		Bundle:    bundle.withDefaults(),
	}
}

// Write serializes data to <dir>/<baseName>.<ext> and returns the path
func (w *MultiFileWriter) Write(data any, baseName string) (string, error) {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(w.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(w.OutputDir, baseName+"."+w.Format.Extension())
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := Encode(file, w.Format, data); err != nil {
		_ = file.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

// WriteStructure writes the structure dump and returns the written path
func (w *MultiFileWriter) WriteStructure(dump *schema.StructureDump) (string, error) {
	return w.Write(dump.Schemas, w.Bundle.StructureFile)
}

// WriteRelationships writes declared edges, inferred edges and stats as three
// files and returns the written paths in that order
func (w *MultiFileWriter) WriteRelationships(report *schema.RelationshipReport) ([]string, error) {
	files := []struct {
		data any
		name string
	}{
		{report.ForeignKeys, w.Bundle.RelationshipsFile},
		{report.Inferred, w.Bundle.RelationshipsFile + inferredSuffix},
		{report.Stats, w.Bundle.StatsFile},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := w.Write(f.data, f.name)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
