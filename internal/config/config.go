// Package config implements configuration management for the OpenClaw
// Console: profile loading and persistence, theme lookup, and secure storage
// of gateway auth tokens.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/console/internal/interfaces"
	"github.com/openclaw/console/internal/logging"
)

// DefaultGatewayURL is the conventional local gateway address
const DefaultGatewayURL = "ws://127.0.0.1:18789"

// DefaultSessionKey is the session the console binds to out of the box
const DefaultSessionKey = "webchat"

// legacySessionKey is the session name older profiles carried; it is
// migrated to DefaultSessionKey on load.
const legacySessionKey = "main"

// Config represents the complete configuration file structure
type Config struct {
	Profiles map[string]interfaces.Profile `yaml:"profiles"`
	Themes   map[string]interfaces.Theme   `yaml:"themes"`
}

// Manager implements the ConfigManager interface backed by a YAML file with
// encrypted token storage.
type Manager struct {
	configPath   string
	securityMgr  SecurityManager
	cachedConfig *Config
	logger       *logging.Logger
}

// NewManager creates a configuration manager with OS-appropriate paths and
// security setup.
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to determine configuration path: %w", err)
	}

	securityMgr, err := NewSecurityManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize security manager: %w", err)
	}

	manager := &Manager{
		configPath:  configPath,
		securityMgr: securityMgr,
		logger:      logging.GetConfigLogger(),
	}

	if err := manager.ensureConfigDirectory(); err != nil {
		return nil, fmt.Errorf("failed to create configuration directory: %w", err)
	}

	return manager, nil
}

// NewManagerAt creates a manager against an explicit configuration file,
// used by tests and by the --config flag.
func NewManagerAt(configPath string, securityMgr SecurityManager) (*Manager, error) {
	manager := &Manager{
		configPath:  configPath,
		securityMgr: securityMgr,
		logger:      logging.GetConfigLogger(),
	}
	if err := manager.ensureConfigDirectory(); err != nil {
		return nil, fmt.Errorf("failed to create configuration directory: %w", err)
	}
	return manager, nil
}

// getConfigPath determines the OS-appropriate configuration file path
func getConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	var configDir string
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		configDir = filepath.Join(xdgConfigHome, "clawconsole")
	} else {
		configDir = filepath.Join(homeDir, ".config", "clawconsole")
	}

	return filepath.Join(configDir, "profiles.yaml"), nil
}

// ensureConfigDirectory creates the configuration directory with secure permissions
func (m *Manager) ensureConfigDirectory() error {
	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// loadConfig reads and parses the configuration file, creating defaults if necessary
func (m *Manager) loadConfig() (*Config, error) {
	if m.cachedConfig != nil {
		return m.cachedConfig, nil
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		config := m.createDefaultConfig()
		if err := m.saveConfig(config); err != nil {
			return nil, fmt.Errorf("failed to create default configuration: %w", err)
		}
		m.cachedConfig = config
		return config, nil
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	// Decrypt tokens and migrate legacy session keys
	for name, profile := range config.Profiles {
		if profile.Token != "" {
			decryptedToken, err := m.securityMgr.DecryptCredential(profile.Token)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt token for profile %s: %w", name, err)
			}
			profile.Token = decryptedToken
		}
		if profile.SessionKey == legacySessionKey {
			m.logger.Info("Migrating legacy session key",
				"profile", name, "from", legacySessionKey, "to", DefaultSessionKey)
			profile.SessionKey = DefaultSessionKey
		}
		config.Profiles[name] = profile
	}

	m.cachedConfig = &config
	return &config, nil
}

// saveConfig writes the configuration to disk with encrypted tokens
func (m *Manager) saveConfig(config *Config) error {
	configCopy := *config
	configCopy.Profiles = make(map[string]interfaces.Profile)

	for name, profile := range config.Profiles {
		profileCopy := profile
		if profile.Token != "" {
			encryptedToken, err := m.securityMgr.EncryptCredential(profile.Token)
			if err != nil {
				return fmt.Errorf("failed to encrypt token for profile %s: %w", name, err)
			}
			profileCopy.Token = encryptedToken
		}
		configCopy.Profiles[name] = profileCopy
	}

	data, err := yaml.Marshal(&configCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	return nil
}

// createDefaultConfig generates a sensible default configuration
func (m *Manager) createDefaultConfig() *Config {
	return &Config{
		Profiles: map[string]interfaces.Profile{
			"default": {
				Name:       "default",
				GatewayURL: DefaultGatewayURL,
				SessionKey: DefaultSessionKey,
				Theme:      "claw",
			},
		},
		Themes: map[string]interfaces.Theme{
			"claw": {
				Name:    "claw",
				Success: "#22c55e",
				Error:   "#ef4444",
				Warning: "#f59e0b",
				Info:    "#38bdf8",
			},
			"mono": {
				Name:    "mono",
				Success: "#d4d4d4",
				Error:   "#ffffff",
				Warning: "#a3a3a3",
				Info:    "#737373",
			},
		},
	}
}

// LoadProfile retrieves a profile by name from the configuration file
func (m *Manager) LoadProfile(name string) (*interfaces.Profile, error) {
	config, err := m.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	profile, exists := config.Profiles[name]
	if !exists {
		return nil, fmt.Errorf("profile '%s' not found", name)
	}

	profile.Name = name

	if err := m.ValidateProfile(&profile); err != nil {
		return nil, fmt.Errorf("profile '%s' is invalid: %w", name, err)
	}

	return &profile, nil
}

// SaveProfile persists a profile to the configuration file
func (m *Manager) SaveProfile(profile *interfaces.Profile) error {
	if err := m.ValidateProfile(profile); err != nil {
		return fmt.Errorf("cannot save invalid profile: %w", err)
	}

	config, err := m.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if config.Profiles == nil {
		config.Profiles = make(map[string]interfaces.Profile)
	}
	config.Profiles[profile.Name] = *profile

	if err := m.saveConfig(config); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	m.cachedConfig = config
	return nil
}

// ListProfiles returns all available profile names
func (m *Manager) ListProfiles() ([]string, error) {
	config, err := m.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var profileNames []string
	for name := range config.Profiles {
		profileNames = append(profileNames, name)
	}
	return profileNames, nil
}

// DeleteProfile removes a profile from the configuration
func (m *Manager) DeleteProfile(name string) error {
	config, err := m.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if _, exists := config.Profiles[name]; !exists {
		return fmt.Errorf("profile '%s' does not exist", name)
	}

	if name == "default" {
		return fmt.Errorf("cannot delete the default profile")
	}

	delete(config.Profiles, name)

	if err := m.saveConfig(config); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	m.cachedConfig = config
	return nil
}

// LoadTheme retrieves theme configuration by name
func (m *Manager) LoadTheme(name string) (*interfaces.Theme, error) {
	config, err := m.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	theme, exists := config.Themes[name]
	if !exists {
		return nil, fmt.Errorf("theme '%s' not found", name)
	}

	theme.Name = name
	return &theme, nil
}

// ValidateProfile ensures profile has all required fields
func (m *Manager) ValidateProfile(profile *interfaces.Profile) error {
	if profile == nil {
		return fmt.Errorf("profile cannot be nil")
	}

	if strings.TrimSpace(profile.Name) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	url := strings.TrimSpace(profile.GatewayURL)
	if url == "" {
		return fmt.Errorf("gateway URL cannot be empty")
	}
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return fmt.Errorf("gateway URL must use ws:// or wss:// (e.g. %s)", DefaultGatewayURL)
	}

	if strings.TrimSpace(profile.SessionKey) == "" {
		return fmt.Errorf("session key cannot be empty")
	}

	if profile.Token != "" {
		if err := m.securityMgr.ValidateTokenFormat(profile.Token); err != nil {
			return fmt.Errorf("invalid gateway token: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the path to the configuration file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// InvalidateCache clears the cached configuration, forcing a reload on next access
func (m *Manager) InvalidateCache() {
	m.cachedConfig = nil
}
