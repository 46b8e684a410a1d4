package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// LockFileName is created inside the output directory while a run holds it.
const LockFileName = ".pipeline.lock"

// ErrOutputLocked is returned when another process holds the output directory.
var ErrOutputLocked = errors.New("output directory is locked by another run")

// OutputManager owns the artifact directory of a pipeline.
type OutputManager struct {
	BaseOutputDir string
	lock          *flock.Flock
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
		lock:          flock.New(filepath.Join(baseOutputDir, LockFileName)),
	}
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	if err := os.MkdirAll(om.BaseOutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

// Lock takes an exclusive, non-blocking lock on the output directory so two
// runs never write the same artifacts. The returned func releases it.
func (om *OutputManager) Lock() (func() error, error) {
	if err := om.EnsureOutputDirExists(); err != nil {
		return nil, err
	}
	ok, err := om.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, om.BaseOutputDir)
	}
	return om.lock.Unlock, nil
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	default:
		return "unknown"
	}
}

// GetFileSize returns the size of a file in bytes, or -1 when it does not exist.
func (om *OutputManager) GetFileSize(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return -1
	}
	return info.Size()
}
