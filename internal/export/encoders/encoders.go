// Package encoders holds the built-in output formats. Each file
// implements one kind and registers itself with the export registry
// from init(), so importing this package for side effects is enough
// to make the standard kinds available.
package encoders

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
)

// createTarget creates missing ancestor directories and opens the
// target file for writing, truncating any previous artifact.
func createTarget(target string) (*os.File, error) {
	if dir := filepath.Dir(target); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create target directory: %w", err)
		}
	}
	f, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("create target file: %w", err)
	}
	return f, nil
}

// discardTarget closes and removes a half-written artifact so a failed
// export never leaves a partial file behind.
func discardTarget(f *os.File, target string) {
	f.Close()
	os.Remove(target)
}

// closeTarget finalizes a written artifact. If the close itself fails
// the file is removed, so callers never report success for a torn file.
func closeTarget(f *os.File, target string) error {
	if err := f.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("close target: %w", err)
	}
	return nil
}

// isComposite reports whether v is a nested mapping or sequence.
func isComposite(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}

// compositeToken serializes a nested value as a single-line JSON token.
func compositeToken(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize nested value: %w", err)
	}
	return string(b), nil
}

// scalarText renders a non-string scalar in its literal textual form.
// Floats use the shortest exact representation so whole numbers read
// as "1" rather than "1.000000".
func scalarText(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(n)
	default:
		return fmt.Sprint(v)
	}
}
