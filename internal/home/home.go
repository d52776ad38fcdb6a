package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the formfill home directory.
	DefaultDirName = ".formfill"

	// TemplatesDirName is the subdirectory for template definitions and
	// their blank PDFs.
	TemplatesDirName = "templates"

	// OutputDirName is the subdirectory for filled documents and reports.
	OutputDirName = "output"

	// UploadsDirName is the subdirectory the server writes uploads into.
	UploadsDirName = "uploads"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the formfill home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.formfill).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// TemplatesPath returns the path to the templates directory. Definitions
// placed here override the embedded builtins by ID.
func (d *Dir) TemplatesPath() string {
	return filepath.Join(d.path, TemplatesDirName)
}

// OutputPath returns the path to the output directory.
func (d *Dir) OutputPath() string {
	return filepath.Join(d.path, OutputDirName)
}

// UploadsPath returns the path to the uploads scratch directory.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.TemplatesPath(), d.OutputPath(), d.UploadsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// OutputPDFPath returns the path for a filled document.
func (d *Dir) OutputPDFPath(runID string) string {
	return filepath.Join(d.OutputPath(), fmt.Sprintf("%s.pdf", runID))
}

// OutputReportPath returns the path for a run's report.
func (d *Dir) OutputReportPath(runID string) string {
	return filepath.Join(d.OutputPath(), fmt.Sprintf("%s.report.yaml", runID))
}

// UploadPath returns the scratch path for one uploaded file.
func (d *Dir) UploadPath(runID, filename string) string {
	return filepath.Join(d.UploadsPath(), runID, filepath.Base(filename))
}

// EnsureUploadDir creates the scratch directory for a run's uploads.
func (d *Dir) EnsureUploadDir(runID string) error {
	return os.MkdirAll(filepath.Join(d.UploadsPath(), runID), 0o755)
}
