package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

// CreateTestZip creates a zip archive at dir/name. files maps the path
// inside the archive to its content; a path ending in "/" is a directory.
func CreateTestZip(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	file, err := os.Create(filePath)
	if err != nil {
		t.Fatalf("Failed to create temp zip file: %v", err)
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	for entry, content := range files {
		w, err := zipWriter.Create(entry)
		if err != nil {
			t.Fatalf("Failed to create entry '%s' in zip: %v", entry, err)
		}
		if content == "" {
			continue
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write entry '%s' in zip: %v", entry, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("Failed to finalize zip: %v", err)
	}
	return filePath
}

// ZipBytes returns the content of a zip built by CreateTestZip.
func ZipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	path := CreateTestZip(t, t.TempDir(), "artifact.zip", files)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read zip: %v", err)
	}
	return data
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}
