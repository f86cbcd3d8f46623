// Package config provides secure storage for gateway auth tokens: tokens are
// encrypted at rest with a key derived from machine-local key material.
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// SecurityManager handles encryption and decryption of sensitive configuration data
type SecurityManager interface {
	// EncryptCredential encrypts a gateway token for storage
	EncryptCredential(plaintext string) (string, error)

	// DecryptCredential decrypts a stored gateway token for use
	DecryptCredential(ciphertext string) (string, error)

	// ValidateTokenFormat performs format validation on gateway tokens
	ValidateTokenFormat(token string) error

	// SecureKeyExists checks if encryption key material is available
	SecureKeyExists() bool

	// GenerateSecureKey creates new encryption key material
	GenerateSecureKey() error
}

// AESSecurityManager implements SecurityManager using AES-256-GCM encryption
type AESSecurityManager struct {
	keyPath    string
	masterKey  []byte
	keyDerived bool
}

// NewSecurityManager creates a security manager with OS-appropriate key storage
func NewSecurityManager() (SecurityManager, error) {
	keyPath, err := getSecurityKeyPath()
	if err != nil {
		return nil, fmt.Errorf("failed to determine security key path: %w", err)
	}
	return NewSecurityManagerAt(keyPath)
}

// NewSecurityManagerAt creates a security manager with an explicit key path,
// used by tests.
func NewSecurityManagerAt(keyPath string) (SecurityManager, error) {
	manager := &AESSecurityManager{
		keyPath: keyPath,
	}

	if err := manager.ensureSecurityDirectory(); err != nil {
		return nil, fmt.Errorf("failed to create security directory: %w", err)
	}

	if err := manager.initializeEncryptionKey(); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption key: %w", err)
	}

	return manager, nil
}

// getSecurityKeyPath determines the OS-appropriate path for storing encryption keys
func getSecurityKeyPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}

	var securityDir string
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		securityDir = filepath.Join(xdgDataHome, "clawconsole", "security")
	} else {
		securityDir = filepath.Join(homeDir, ".local", "share", "clawconsole", "security")
	}

	return filepath.Join(securityDir, "master.key"), nil
}

// ensureSecurityDirectory creates the security directory with restrictive permissions
func (s *AESSecurityManager) ensureSecurityDirectory() error {
	securityDir := filepath.Dir(s.keyPath)
	if err := os.MkdirAll(securityDir, 0700); err != nil {
		return fmt.Errorf("failed to create security directory %s: %w", securityDir, err)
	}
	return nil
}

// initializeEncryptionKey loads existing key or generates a new one
func (s *AESSecurityManager) initializeEncryptionKey() error {
	if _, err := os.Stat(s.keyPath); os.IsNotExist(err) {
		return s.GenerateSecureKey()
	}
	return s.loadExistingKey()
}

// loadExistingKey reads and derives the master key from stored key material
func (s *AESSecurityManager) loadExistingKey() error {
	keyData, err := os.ReadFile(s.keyPath)
	if err != nil {
		return fmt.Errorf("failed to read master key file: %w", err)
	}

	salt, err := hex.DecodeString(string(keyData))
	if err != nil {
		return fmt.Errorf("failed to decode key material: %w", err)
	}

	passphrase := s.generateMachinePassphrase()
	s.masterKey = pbkdf2.Key([]byte(passphrase), salt, 100000, 32, sha256.New)
	s.keyDerived = true

	return nil
}

// generateMachinePassphrase creates a machine-specific passphrase for key derivation
func (s *AESSecurityManager) generateMachinePassphrase() string {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME") // Windows compatibility
	}
	return fmt.Sprintf("clawconsole-security-%s-%s", hostname, username)
}

// GenerateSecureKey creates new encryption key material and stores it securely
func (s *AESSecurityManager) GenerateSecureKey() error {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate random salt: %w", err)
	}

	saltHex := hex.EncodeToString(salt)
	if err := os.WriteFile(s.keyPath, []byte(saltHex), 0600); err != nil {
		return fmt.Errorf("failed to write key material: %w", err)
	}

	passphrase := s.generateMachinePassphrase()
	s.masterKey = pbkdf2.Key([]byte(passphrase), salt, 100000, 32, sha256.New)
	s.keyDerived = true

	return nil
}

// SecureKeyExists checks if encryption key material is available
func (s *AESSecurityManager) SecureKeyExists() bool {
	_, err := os.Stat(s.keyPath)
	return err == nil
}

// EncryptCredential encrypts a gateway token using AES-256-GCM
func (s *AESSecurityManager) EncryptCredential(plaintext string) (string, error) {
	if !s.keyDerived {
		return "", fmt.Errorf("encryption key not available")
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptCredential decrypts a stored gateway token
func (s *AESSecurityManager) DecryptCredential(ciphertext string) (string, error) {
	if !s.keyDerived {
		return "", fmt.Errorf("encryption key not available")
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// ValidateTokenFormat performs format validation on gateway tokens
func (s *AESSecurityManager) ValidateTokenFormat(token string) error {
	token = strings.TrimSpace(token)

	if token == "" {
		return fmt.Errorf("token cannot be empty")
	}

	if strings.ContainsAny(token, " \t\n\r") {
		return fmt.Errorf("token cannot contain whitespace")
	}

	return nil
}

// ClearSecurityData removes all encryption key material (for security reset)
func (s *AESSecurityManager) ClearSecurityData() error {
	if s.masterKey != nil {
		for i := range s.masterKey {
			s.masterKey[i] = 0
		}
		s.masterKey = nil
		s.keyDerived = false
	}

	if err := os.Remove(s.keyPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove security key file: %w", err)
	}

	return nil
}
