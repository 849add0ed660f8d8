package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robertguss/rxflow-go/internal/auth"
	"github.com/robertguss/rxflow-go/internal/config"
	"github.com/robertguss/rxflow-go/internal/profile"
	"github.com/robertguss/rxflow-go/internal/storage"
)

// Check names
const (
	CheckDataDir  = "Data Directory"
	CheckDatabase = "Database"
	CheckBackend  = "Backend API"
	CheckProfiles = "Profiles"
	CheckSession  = "Saved Session"
)

// warnings are reported but do not block startup
var warnings = map[string]bool{
	CheckProfiles: true,
	CheckSession:  true,
}

// CheckResult represents the result of a single pre-flight check
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	Error   string
}

// Results holds all pre-flight check results
type Results struct {
	Checks  []CheckResult
	AllPass bool
}

// Pinger reaches the pharmacy backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes all pre-flight checks
func RunAll(ctx context.Context, cfg *config.Config, backend Pinger) *Results {
	results := &Results{
		Checks:  make([]CheckResult, 0),
		AllPass: true,
	}

	results.addCheck(checkDataDir(cfg))
	results.addCheck(checkDatabase(cfg))
	results.addCheck(checkBackend(ctx, cfg, backend))
	results.addCheck(checkProfiles(cfg))
	results.addCheck(checkSavedSession(cfg))

	return results
}

// addCheck adds a check result and updates AllPass
func (r *Results) addCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	if !check.Passed && !warnings[check.Name] {
		r.AllPass = false
	}
}

// PassedCount returns the number of passed checks
func (r *Results) PassedCount() int {
	count := 0
	for _, check := range r.Checks {
		if check.Passed {
			count++
		}
	}
	return count
}

// FailedChecks returns only the failed checks
func (r *Results) FailedChecks() []CheckResult {
	failed := make([]CheckResult, 0)
	for _, check := range r.Checks {
		if !check.Passed {
			failed = append(failed, check)
		}
	}
	return failed
}

// IsWarning reports whether a failed check of this name is non-blocking
func IsWarning(name string) bool {
	return warnings[name]
}

// checkDataDir verifies the data directory exists (creating it) and is writable
func checkDataDir(cfg *config.Config) CheckResult {
	result := CheckResult{Name: CheckDataDir}

	if err := cfg.EnsureDataDir(); err != nil {
		result.Error = err.Error()
		return result
	}

	tmp, err := os.CreateTemp(cfg.DataDir, ".preflight-*")
	if err != nil {
		result.Error = fmt.Sprintf("Not writable: %s", cfg.DataDir)
		return result
	}
	tmp.Close()
	os.Remove(tmp.Name())

	result.Passed = true
	result.Message = cfg.DataDir
	return result
}

// checkDatabase opens the history database, running migrations
func checkDatabase(cfg *config.Config) CheckResult {
	result := CheckResult{Name: CheckDatabase}

	path := cfg.DatabasePath
	if path == "" {
		path = storage.GetDatabasePath(cfg.DataDir)
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer store.Close()

	result.Passed = true
	result.Message = filepath.Base(path)
	return result
}

// checkBackend pings the pharmacy API within the request timeout
func checkBackend(ctx context.Context, cfg *config.Config, backend Pinger) CheckResult {
	result := CheckResult{Name: CheckBackend}

	if backend == nil {
		result.Error = "No backend client configured"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	if err := backend.Ping(ctx); err != nil {
		result.Error = fmt.Sprintf("Unreachable: %v", err)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("%s (%dms)", cfg.APIBaseURL, time.Since(start).Milliseconds())
	return result
}

// checkProfiles verifies every profile file parses and the selected profile exists
func checkProfiles(cfg *config.Config) CheckResult {
	result := CheckResult{Name: CheckProfiles}

	store := profile.NewProfileStore(cfg.DataDir)
	if err := store.Load(); err != nil {
		result.Error = err.Error()
		return result
	}

	files, _ := filepath.Glob(filepath.Join(store.Dir(), "*.yaml"))
	loaded := len(store.List())
	if invalid := len(files) - loaded; invalid > 0 {
		result.Error = fmt.Sprintf("%d of %d profiles failed to parse", invalid, len(files))
		return result
	}

	if cfg.ActiveProfile != "" {
		if _, ok := store.Get(cfg.ActiveProfile); !ok {
			result.Error = fmt.Sprintf("Profile not found: %s", cfg.ActiveProfile)
			return result
		}
	}

	result.Passed = true
	if loaded == 0 {
		result.Message = "None defined"
	} else {
		result.Message = fmt.Sprintf("%d loaded", loaded)
	}
	return result
}

// checkSavedSession reports whether a login will be needed (warning only)
func checkSavedSession(cfg *config.Config) CheckResult {
	result := CheckResult{Name: CheckSession}

	if _, err := os.Stat(filepath.Join(cfg.DataDir, auth.SessionFileName)); err != nil {
		result.Error = "No saved credentials, login required"
		return result
	}

	result.Passed = true
	result.Message = "Found"
	return result
}
