// Package deviceid keeps the persistent instance id a server puts in its
// discovery announcements so it can recognise its own broadcasts
package deviceid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// ConfigDir is the directory for lanshare configuration
	ConfigDir = ".lanshare"
	// InstanceIDFile is the filename for the instance id
	InstanceIDFile = "instance_id"
)

// GetOrCreate returns the instance id from ~/.lanshare/instance_id,
// creating one if it doesn't exist
func GetOrCreate() (string, error) {
	dir, err := defaultDir()
	if err != nil {
		return "", err
	}
	return GetOrCreateIn(dir)
}

// GetOrCreateIn is GetOrCreate rooted at dir
func GetOrCreateIn(dir string) (string, error) {
	id, err := GetIn(dir)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.New().String()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, InstanceIDFile), []byte(id), 0600); err != nil {
		return "", fmt.Errorf("failed to write instance id: %w", err)
	}
	return id, nil
}

// Get returns the instance id if it exists, or empty string if not
func Get() (string, error) {
	dir, err := defaultDir()
	if err != nil {
		return "", err
	}
	return GetIn(dir)
}

// GetIn is Get rooted at dir
func GetIn(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, InstanceIDFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir), nil
}
