package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robertguss/rxflow-go/internal/config"
)

// Profile is a named pharmacy backend configuration. Zero-valued fields
// leave the base configuration untouched.
type Profile struct {
	Name             string        `yaml:"name"`
	Description      string        `yaml:"description,omitempty"`
	APIBaseURL       string        `yaml:"api_base_url,omitempty"`
	RequestTimeout   time.Duration `yaml:"request_timeout,omitempty"`
	AutoSaveEnabled  *bool         `yaml:"autosave_enabled,omitempty"`
	AutoSaveInterval time.Duration `yaml:"autosave_interval,omitempty"`
	DebounceDelay    time.Duration `yaml:"debounce_delay,omitempty"`
	Theme            string        `yaml:"theme,omitempty"`
}

// ApplyToConfig overlays the profile's set fields onto cfg
func (p *Profile) ApplyToConfig(cfg *config.Config) {
	if p.APIBaseURL != "" {
		cfg.APIBaseURL = p.APIBaseURL
	}
	if p.RequestTimeout > 0 {
		cfg.RequestTimeout = p.RequestTimeout
	}
	if p.AutoSaveEnabled != nil {
		cfg.AutoSaveEnabled = *p.AutoSaveEnabled
	}
	if p.AutoSaveInterval > 0 {
		cfg.AutoSaveInterval = p.AutoSaveInterval
	}
	if p.DebounceDelay > 0 {
		cfg.DebounceDelay = p.DebounceDelay
	}
	if p.Theme != "" {
		cfg.Theme = p.Theme
	}
	cfg.ActiveProfile = p.Name
}

// ProfileStore manages profile persistence
type ProfileStore struct {
	profileDir string

	mu       sync.RWMutex
	profiles map[string]*Profile
	active   string
}

// NewProfileStore creates a new profile store
func NewProfileStore(dataDir string) *ProfileStore {
	return &ProfileStore{
		profileDir: filepath.Join(dataDir, "profiles"),
		profiles:   make(map[string]*Profile),
	}
}

// Dir returns the directory profiles are stored in
func (ps *ProfileStore) Dir() string {
	return ps.profileDir
}

// Path returns the file a named profile is stored in
func (ps *ProfileStore) Path(name string) string {
	return filepath.Join(ps.profileDir, name+".yaml")
}

// Load loads all profiles from disk
func (ps *ProfileStore) Load() error {
	if err := os.MkdirAll(ps.profileDir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(ps.profileDir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	for _, file := range files {
		profile, err := loadProfile(file)
		if err != nil {
			continue // Skip invalid profiles
		}
		ps.profiles[profile.Name] = profile
	}

	if data, err := os.ReadFile(filepath.Join(ps.profileDir, ".active")); err == nil {
		ps.active = strings.TrimSpace(string(data))
	}

	return nil
}

// Reload re-reads a single profile from disk, replacing the cached copy
func (ps *ProfileStore) Reload(name string) (*Profile, error) {
	if err := validateProfileName(name); err != nil {
		return nil, err
	}

	profile, err := loadProfile(ps.Path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to reload profile %s: %w", name, err)
	}

	ps.mu.Lock()
	ps.profiles[profile.Name] = profile
	ps.mu.Unlock()

	return profile, nil
}

// loadProfile loads a single profile from a YAML file
func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, err
	}

	// Use filename as name if not specified
	if profile.Name == "" {
		profile.Name = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}

	return &profile, nil
}

// validateProfileName rejects names that would escape the profile directory
func validateProfileName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return fmt.Errorf("profile name contains invalid characters: must not contain /, \\, or ..")
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("profile name cannot start with a dot")
	}
	return nil
}

// Save saves a profile to disk
func (ps *ProfileStore) Save(profile *Profile) error {
	if err := validateProfileName(profile.Name); err != nil {
		return err
	}

	if err := os.MkdirAll(ps.profileDir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := yaml.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := os.WriteFile(ps.Path(profile.Name), data, 0644); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	ps.mu.Lock()
	ps.profiles[profile.Name] = profile
	ps.mu.Unlock()
	return nil
}

// Delete removes a profile from disk
func (ps *ProfileStore) Delete(name string) error {
	if err := validateProfileName(name); err != nil {
		return err
	}

	if err := os.Remove(ps.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	ps.mu.Lock()
	delete(ps.profiles, name)
	ps.mu.Unlock()
	return nil
}

// Get returns a profile by name
func (ps *ProfileStore) Get(name string) (*Profile, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.profiles[name]
	return p, ok
}

// List returns all profile names, sorted
func (ps *ProfileStore) List() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	names := make([]string, 0, len(ps.profiles))
	for name := range ps.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetActive sets the active profile
func (ps *ProfileStore) SetActive(name string) error {
	if _, ok := ps.Get(name); !ok {
		return fmt.Errorf("profile not found: %s", name)
	}

	activeFile := filepath.Join(ps.profileDir, ".active")
	if err := os.WriteFile(activeFile, []byte(name), 0644); err != nil {
		return fmt.Errorf("failed to set active profile: %w", err)
	}

	ps.mu.Lock()
	ps.active = name
	ps.mu.Unlock()
	return nil
}

// GetActive returns the active profile name
func (ps *ProfileStore) GetActive() string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.active
}

// GetActiveProfile returns the active profile, or nil
func (ps *ProfileStore) GetActiveProfile() *Profile {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if ps.active == "" {
		return nil
	}
	return ps.profiles[ps.active]
}

// Resolve picks the profile to apply: name if given, otherwise the active one
func (ps *ProfileStore) Resolve(name string) (*Profile, error) {
	if name == "" {
		return ps.GetActiveProfile(), nil
	}
	p, ok := ps.Get(name)
	if !ok {
		return nil, fmt.Errorf("profile not found: %s", name)
	}
	return p, nil
}

// CreateDefault creates a default profile from the current config
func (ps *ProfileStore) CreateDefault(cfg *config.Config) *Profile {
	autosave := cfg.AutoSaveEnabled
	return &Profile{
		Name:             "default",
		Description:      "Default pharmacy backend",
		APIBaseURL:       cfg.APIBaseURL,
		RequestTimeout:   cfg.RequestTimeout,
		AutoSaveEnabled:  &autosave,
		AutoSaveInterval: cfg.AutoSaveInterval,
		DebounceDelay:    cfg.DebounceDelay,
		Theme:            cfg.Theme,
	}
}
