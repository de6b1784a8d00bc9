package hsm

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

// ReceiptSigningKey signs fee receipt payloads.
const ReceiptSigningKey = "receipt_signing"

const (
	saltFile        = "keystore.salt"
	keyFileSuffix   = ".key"
	defaultValidity = 365 * 24 * time.Hour
)

var validKeyID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// HSMInterface defines the HSM operations
type HSMInterface interface {
	GenerateKeyPair(keyID string) (*KeyPair, error)
	GetPublicKey(keyID string) (string, error)

	SignData(keyID string, data []byte) ([]byte, error)
	VerifySignature(keyID string, data, signature []byte) (bool, error)
}

// HSMServer is a software key store. Private keys are kept on disk
// encrypted with a master key derived through Argon2.
type HSMServer struct {
	keys         map[string]*KeyPair
	masterKey    []byte
	mu           sync.RWMutex
	keyStorePath string
	validity     time.Duration
	logger       *zap.SugaredLogger
}

// KeyPair holds RSA key pair
type KeyPair struct {
	ID         string
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
	CreatedAt  time.Time
	ExpiresAt  time.Time
	IsActive   bool
}

// storedKey is the on-disk form of a KeyPair before encryption.
type storedKey struct {
	ID         string    `json:"id"`
	PrivateKey []byte    `json:"private_key"` // PKCS#1 DER
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsActive   bool      `json:"is_active"`
}

// Config holds HSM configuration
type Config struct {
	MasterKey       string
	KeyStorePath    string // empty keeps keys in memory only
	KeyRotationDays int
	Salt            []byte // Optional: read from or written to the key store when nil
	Logger          *zap.Logger
}

// InitHSM initializes the HSM server and makes sure the receipt signing key exists.
func InitHSM(config Config) (*HSMServer, error) {
	if config.MasterKey == "" {
		return nil, errors.New("Master Key Required")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	salt := config.Salt
	if salt == nil {
		var err error
		if salt, err = loadOrCreateSalt(config.KeyStorePath); err != nil {
			return nil, fmt.Errorf("failed to prepare salt: %w", err)
		}
	}

	validity := defaultValidity
	if config.KeyRotationDays > 0 {
		validity = time.Duration(config.KeyRotationDays) * 24 * time.Hour
	}

	hsm := &HSMServer{
		keys:         make(map[string]*KeyPair),
		masterKey:    deriveKey(config.MasterKey, salt, 32),
		keyStorePath: config.KeyStorePath,
		validity:     validity,
		logger:       config.Logger.Named("hsm").Sugar(),
	}

	if err := hsm.loadKeys(); err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}

	if _, exists := hsm.keys[ReceiptSigningKey]; !exists {
		if _, err := hsm.GenerateKeyPair(ReceiptSigningKey); err != nil {
			return nil, fmt.Errorf("failed to generate default keys: %w", err)
		}
	}

	hsm.logger.Infof("[HSM] Initialized with %d key(s)", len(hsm.keys))
	return hsm, nil
}

// GenerateKeyPair creates a new RSA key pair
func (h *HSMServer) GenerateKeyPair(keyID string) (*KeyPair, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := validateKeyID(keyID); err != nil {
		return nil, fmt.Errorf("invalid key ID: %w", err)
	}
	if _, exists := h.keys[keyID]; exists {
		return nil, fmt.Errorf("key with ID %s already exists", keyID)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	now := time.Now()
	keyPair := &KeyPair{
		ID:         keyID,
		PublicKey:  &privateKey.PublicKey,
		PrivateKey: privateKey,
		CreatedAt:  now,
		ExpiresAt:  now.Add(h.validity),
		IsActive:   true,
	}

	if err := h.saveKeyToDisk(keyPair); err != nil {
		return nil, fmt.Errorf("failed to save key to disk: %w", err)
	}
	h.keys[keyID] = keyPair

	h.logger.Infof("[HSM] Generated key pair %s", keyID)
	return keyPair, nil
}

// GetPublicKey returns the public key in PEM format
func (h *HSMServer) GetPublicKey(keyID string) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keyPair, exists := h.keys[keyID]
	if !exists {
		return "", fmt.Errorf("key %s not found", keyID)
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(keyPair.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyBytes,
	})), nil
}

// SignData signs data with RSA private key
func (h *HSMServer) SignData(keyID string, data []byte) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keyPair, exists := h.keys[keyID]
	if !exists {
		return nil, fmt.Errorf("key %s not found", keyID)
	}
	if !keyPair.IsActive {
		return nil, fmt.Errorf("key %s is not active", keyID)
	}

	hashed := sha256.Sum256(data)
	signature, err := rsa.SignPKCS1v15(rand.Reader, keyPair.PrivateKey, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign data: %w", err)
	}
	return signature, nil
}

// VerifySignature verifies RSA signature. Inactive keys still verify what
// they signed before.
func (h *HSMServer) VerifySignature(keyID string, data, signature []byte) (bool, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keyPair, exists := h.keys[keyID]
	if !exists {
		return false, fmt.Errorf("key %s not found", keyID)
	}

	hashed := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(keyPair.PublicKey, crypto.SHA256, hashed[:], signature); err != nil {
		return false, nil
	}
	return true, nil
}

func (h *HSMServer) loadKeys() error {
	if h.keyStorePath == "" {
		return nil
	}

	files, err := os.ReadDir(h.keyStorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(h.keyStorePath, 0700)
		}
		return err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != keyFileSuffix {
			continue
		}

		keyData, err := os.ReadFile(filepath.Join(h.keyStorePath, file.Name()))
		if err != nil {
			return err
		}

		decrypted, err := h.decryptWithMasterKey(keyData)
		if err != nil {
			return fmt.Errorf("key file %s: %w", file.Name(), err)
		}

		var stored storedKey
		if err := json.Unmarshal(decrypted, &stored); err != nil {
			return fmt.Errorf("key file %s: %w", file.Name(), err)
		}

		privateKey, err := x509.ParsePKCS1PrivateKey(stored.PrivateKey)
		if err != nil {
			return fmt.Errorf("key file %s: %w", file.Name(), err)
		}

		h.keys[stored.ID] = &KeyPair{
			ID:         stored.ID,
			PublicKey:  &privateKey.PublicKey,
			PrivateKey: privateKey,
			CreatedAt:  stored.CreatedAt,
			ExpiresAt:  stored.ExpiresAt,
			IsActive:   stored.IsActive,
		}
	}

	return nil
}

func (h *HSMServer) saveKeyToDisk(keyPair *KeyPair) error {
	if h.keyStorePath == "" {
		return nil
	}

	keyData, err := json.Marshal(storedKey{
		ID:         keyPair.ID,
		PrivateKey: x509.MarshalPKCS1PrivateKey(keyPair.PrivateKey),
		CreatedAt:  keyPair.CreatedAt,
		ExpiresAt:  keyPair.ExpiresAt,
		IsActive:   keyPair.IsActive,
	})
	if err != nil {
		return err
	}

	encrypted, err := h.encryptWithMasterKey(keyData)
	if err != nil {
		return err
	}

	// keyPair.ID was checked by validateKeyID, so the join stays inside the store
	keyPath := filepath.Join(h.keyStorePath, keyPair.ID+keyFileSuffix)
	return os.WriteFile(keyPath, encrypted, 0600)
}

func (h *HSMServer) encryptWithMasterKey(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(h.masterKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, data, nil), nil
}

func (h *HSMServer) decryptWithMasterKey(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(h.masterKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// loadOrCreateSalt keeps the master key derivation stable across restarts.
func loadOrCreateSalt(keyStorePath string) ([]byte, error) {
	salt := make([]byte, 16)
	if keyStorePath == "" {
		_, err := rand.Read(salt)
		return salt, err
	}

	path := filepath.Join(keyStorePath, saltFile)
	existing, err := os.ReadFile(path)
	if err == nil {
		return existing, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.MkdirAll(keyStorePath, 0700); err != nil {
		return nil, err
	}
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, os.WriteFile(path, salt, 0600)
}

func deriveKey(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, 3, 32*1024, 4, keyLen)
}

// validateKeyID validates key ID to prevent path traversal attacks
func validateKeyID(keyID string) error {
	if keyID == "" {
		return errors.New("key ID cannot be empty")
	}
	if !validKeyID.MatchString(keyID) {
		return errors.New("key ID contains invalid characters")
	}
	return nil
}
