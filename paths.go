package suitcap

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// makeDirectory creates the directory basepath/d20060102 for the given day,
// if it doesn't already exist, and returns its name.
func makeDirectory(basepath string, day time.Time) (string, error) {
	if len(basepath) == 0 {
		return "", fmt.Errorf("output directory is the empty string")
	}
	dayDir := filepath.Join(basepath, "d"+day.Format("20060102"))
	if err := os.MkdirAll(dayDir, 0755); err != nil {
		return "", err
	}
	return dayDir, nil
}

// sessionPath returns dir/base.0003.ext for session index 3.
func sessionPath(dir, base string, index int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s.%4.4d.%s", base, index, ext))
}

// runLogPath returns dir/base.config, the run-level metadata file.
func runLogPath(dir, base string) string {
	return filepath.Join(dir, base+".config")
}
