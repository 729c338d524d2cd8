package survey

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validator checks input files before they are parsed
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a validator with the given size limit in bytes
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{maxFileSize: maxFileSize}
}

// ValidateFile checks that path is a non-empty CSV or XLSX file within the
// size limit
func (v *Validator) ValidateFile(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx", ".xlsm":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("%w: file is empty: %s", ErrEmptyInput, path)
	}

	if v.maxFileSize > 0 && fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)", fileInfo.Size(), v.maxFileSize)
	}
	return nil
}
