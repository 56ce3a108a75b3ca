// Package storage provides filesystem utilities for safe and atomic file operations.
//
// This package implements atomic write operations using the standard temp-file + rename
// pattern to ensure data consistency and prevent corruption from partial writes or crashes.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to a file atomically using the temp-file + rename pattern.
// This ensures that either the complete file is written or no changes occur, preventing
// partial writes and corruption.
//
// The function creates a temporary file in the same directory as the target, writes the
// data, syncs to disk, and then atomically renames it to the target path. On any error,
// the temporary file is cleaned up and the original file (if it exists) remains unchanged.
//
// Parameters:
//   - path: destination file path
//   - data: bytes to write
//   - perm: file permissions (e.g., 0644)
//
// Returns error if any step fails.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := EnsureDir(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure parent directory: %w", err)
	}

	// Create temp file in same directory as target (required for atomic rename)
	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Ensure cleanup on error
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	// Write data to temp file
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// Sync to ensure data is on disk before rename
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	// Close temp file before rename
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Set correct permissions on temp file
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// Atomic rename - this is the critical operation that makes the write atomic
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	// Success - prevent cleanup of temp file (it's now the target file)
	tmpFile = nil
	return nil
}

// EnsureDir creates a directory and all necessary parent directories.
// If the directory already exists, it returns nil (no error).
//
// Parameters:
//   - path: directory path to create
//   - perm: directory permissions (e.g., 0755)
//
// Returns error if creation fails.
func EnsureDir(path string, perm os.FileMode) error {
	if path == "" {
		return errors.New("path cannot be empty")
	}

	// MkdirAll is idempotent - returns nil if dir already exists
	if err := os.MkdirAll(path, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

