package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/console/internal/interfaces"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	securityMgr, err := NewSecurityManagerAt(filepath.Join(dir, "security", "master.key"))
	require.NoError(t, err)
	manager, err := NewManagerAt(filepath.Join(dir, "profiles.yaml"), securityMgr)
	require.NoError(t, err)
	return manager
}

func TestDefaultConfigCreatedOnFirstLoad(t *testing.T) {
	manager := newTestManager(t)

	profile, err := manager.LoadProfile("default")
	require.NoError(t, err)
	assert.Equal(t, DefaultGatewayURL, profile.GatewayURL)
	assert.Equal(t, DefaultSessionKey, profile.SessionKey)

	names, err := manager.ListProfiles()
	require.NoError(t, err)
	assert.Contains(t, names, "default")

	// The file now exists on disk
	_, err = os.Stat(manager.GetConfigPath())
	assert.NoError(t, err)
}

func TestProfileRoundTripEncryptsToken(t *testing.T) {
	manager := newTestManager(t)

	profile := &interfaces.Profile{
		Name:       "lab",
		GatewayURL: "wss://lab.example:18789",
		Token:      "super-secret-token",
		SessionKey: "webchat",
		Theme:      "claw",
	}
	require.NoError(t, manager.SaveProfile(profile))

	// The plaintext token never reaches disk
	raw, err := os.ReadFile(manager.GetConfigPath())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "super-secret-token")

	// A fresh load decrypts it back
	manager.InvalidateCache()
	loaded, err := manager.LoadProfile("lab")
	require.NoError(t, err)
	assert.Equal(t, "super-secret-token", loaded.Token)
	assert.Equal(t, "wss://lab.example:18789", loaded.GatewayURL)
}

func TestLegacySessionKeyMigratedOnLoad(t *testing.T) {
	manager := newTestManager(t)

	yaml := `profiles:
  default:
    name: default
    gateway_url: ws://127.0.0.1:18789
    session_key: main
    theme: claw
themes: {}
`
	require.NoError(t, os.WriteFile(manager.GetConfigPath(), []byte(yaml), 0600))

	profile, err := manager.LoadProfile("default")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionKey, profile.SessionKey)
}

func TestValidateProfileRejectsBadInput(t *testing.T) {
	manager := newTestManager(t)

	tests := []struct {
		name    string
		profile *interfaces.Profile
	}{
		{"nil profile", nil},
		{"empty name", &interfaces.Profile{GatewayURL: DefaultGatewayURL, SessionKey: "webchat"}},
		{"empty url", &interfaces.Profile{Name: "p", SessionKey: "webchat"}},
		{"http url", &interfaces.Profile{Name: "p", GatewayURL: "http://127.0.0.1:18789", SessionKey: "webchat"}},
		{"empty session", &interfaces.Profile{Name: "p", GatewayURL: DefaultGatewayURL}},
		{"token with whitespace", &interfaces.Profile{Name: "p", GatewayURL: DefaultGatewayURL, SessionKey: "webchat", Token: "has space"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, manager.ValidateProfile(tt.profile))
		})
	}
}

func TestDeleteProfile(t *testing.T) {
	manager := newTestManager(t)

	require.NoError(t, manager.SaveProfile(&interfaces.Profile{
		Name:       "scratch",
		GatewayURL: DefaultGatewayURL,
		SessionKey: "webchat",
	}))
	require.NoError(t, manager.DeleteProfile("scratch"))

	_, err := manager.LoadProfile("scratch")
	assert.Error(t, err)

	assert.Error(t, manager.DeleteProfile("default"), "default profile must survive")
	assert.Error(t, manager.DeleteProfile("never-existed"))
}

func TestLoadTheme(t *testing.T) {
	manager := newTestManager(t)

	theme, err := manager.LoadTheme("claw")
	require.NoError(t, err)
	assert.Equal(t, "claw", theme.Name)
	assert.NotEmpty(t, theme.Success)

	_, err = manager.LoadTheme("nope")
	assert.Error(t, err)
}

func TestCredentialEncryptionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	securityMgr, err := NewSecurityManagerAt(filepath.Join(dir, "master.key"))
	require.NoError(t, err)

	ciphertext, err := securityMgr.EncryptCredential("a-token")
	require.NoError(t, err)
	assert.NotEqual(t, "a-token", ciphertext)

	plaintext, err := securityMgr.DecryptCredential(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "a-token", plaintext)

	// Each encryption uses a fresh nonce
	other, err := securityMgr.EncryptCredential("a-token")
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, other)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	securityMgr, err := NewSecurityManagerAt(filepath.Join(dir, "master.key"))
	require.NoError(t, err)

	_, err = securityMgr.DecryptCredential("not base64!!!")
	assert.Error(t, err)

	_, err = securityMgr.DecryptCredential("c2hvcnQ=")
	assert.Error(t, err)
}
