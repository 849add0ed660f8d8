// Package testutil provides test utilities and helpers for the rxflow-go tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robertguss/rxflow-go/internal/config"
	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/storage"
)

// NewTestConfig creates a Config with temp directories for testing.
// All temp directories are automatically cleaned up when the test completes.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	tempDir := CreateTempDir(t)

	cfg := &config.Config{
		APIBaseURL:       "http://127.0.0.1:1/api",
		RequestTimeout:   2 * time.Second,
		AutoSaveEnabled:  true,
		AutoSaveInterval: config.DefaultAutoSaveInterval,
		DebounceDelay:    10 * time.Millisecond,
		DataDir:          filepath.Join(tempDir, "data"),
		DatabasePath:     filepath.Join(tempDir, "data", "test.db"),
		LogLevel:         "error",
		Theme:            "catppuccin",
		BridgePort:       config.DefaultBridgePort,
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}

	return cfg
}

// NewTestStorage creates an in-memory SQLite storage for testing.
// The storage is automatically closed when the test completes.
func NewTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	s, err := storage.NewInMemoryStorage()
	if err != nil {
		t.Fatalf("failed to create in-memory storage: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// CreateTempDir creates a temporary directory for testing.
// The directory is automatically removed when the test completes.
func CreateTempDir(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "rxflow-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	return dir
}

// CreateTempFileInDir creates a file with given content in the specified directory.
func CreateTempFileInDir(t *testing.T, dir, filename, content string) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}

	return path
}

// CreateTestPatient returns a patient fixture
func CreateTestPatient(id int64) *domain.Patient {
	return &domain.Patient{
		ID:          id,
		Contact:     domain.ContactInfo{FirstName: "Ada", LastName: "Lovelace", Phone: "555-0100"},
		DateOfBirth: "1985-12-10",
	}
}

// CreateTestPrescriber returns a prescriber fixture
func CreateTestPrescriber(id int64) *domain.Prescriber {
	return &domain.Prescriber{
		ID:      id,
		Contact: domain.ContactInfo{FirstName: "Gregory", LastName: "House"},
		NPI:     "1234567893",
	}
}

// CreateTestItem returns a valid medication line
func CreateTestItem(medicationID int64) domain.PrescriptionItem {
	return domain.PrescriptionItem{
		MedicationID: medicationID,
		Name:         "Amoxicillin",
		Strength:     "500 mg",
		Quantity:     30,
		Sig:          "1 cap PO TID",
		Refills:      1,
	}
}

// CreateTestDraft creates a saved draft with the requested steps filled in.
func CreateTestDraft(id int64, withPatient, withPrescriber, withMedication bool) *domain.Prescription {
	p := domain.NewPrescription()
	p.ID = id
	p.WrittenAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	if withPatient {
		p.Patient = CreateTestPatient(7)
	}
	if withPrescriber {
		p.Prescriber = CreateTestPrescriber(9)
	}
	if withMedication {
		p.Medications = append(p.Medications, CreateTestItem(101))
	}
	return p
}

// CreateCompleteDraft creates a draft that satisfies every required step.
func CreateCompleteDraft(id int64) *domain.Prescription {
	return CreateTestDraft(id, true, true, true)
}

// ValidProfileYAML returns a profile document for the named backend.
func ValidProfileYAML(name string) string {
	return `name: ` + name + `
description: Test pharmacy backend
api_base_url: http://127.0.0.1:9999/api
request_timeout: 5s
autosave_enabled: true
autosave_interval: 45s
debounce_delay: 150ms
theme: nord
`
}

// MalformedYAML returns malformed YAML content.
func MalformedYAML() string {
	return `name
  missing: colon
  - invalid: structure
`
}
