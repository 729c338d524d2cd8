package survey

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoInput is returned when no input file can be found in a directory
var ErrNoInput = errors.New("no CSV or XLSX input found")

// InputFile describes a candidate input file
type InputFile struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ModifiedTime time.Time `json:"modified_time"`
}

// FindInputs lists CSV and XLSX files directly inside directory. Office lock
// files and names listed in exclude are skipped.
func FindInputs(directory string, exclude ...string) ([]InputFile, error) {
	if directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", directory, err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		if abs, err := filepath.Abs(e); err == nil {
			skip[abs] = true
		}
	}

	var files []InputFile
	for _, entry := range entries {
		if entry.IsDir() || !isInputFile(entry.Name()) {
			continue
		}
		path := filepath.Join(directory, entry.Name())
		if abs, err := filepath.Abs(path); err == nil && skip[abs] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		files = append(files, InputFile{
			Path:         path,
			Name:         entry.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime(),
		})
	}
	return files, nil
}

// DetectInput returns the most recently modified input file in directory
func DetectInput(directory string, exclude ...string) (string, error) {
	files, err := FindInputs(directory, exclude...)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoInput, directory)
	}
	latest := files[0]
	for _, f := range files[1:] {
		if f.ModifiedTime.After(latest.ModifiedTime) {
			latest = f
		}
	}
	return latest.Path, nil
}

func isInputFile(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}
