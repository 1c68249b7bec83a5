// Package vaultx implements the encrypted vault payload format: a symmetric
// key is derived from a wallet signature with PBKDF2, and arbitrary
// JSON-serializable values are sealed with AES-256-GCM.
//
// The signature never leaves the process and no key is stored anywhere:
// possession of the wallet (the ability to reproduce the signature over the
// fixed disclosure prompt) is the only way to decrypt a payload.
package vaultx

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/akarpov91/chainanchor/internal/common"
)

const (
	// FormatVersion identifies the payload layout. Bump on breaking changes.
	FormatVersion = 1

	// Algorithm is fixed for the life of the format.
	Algorithm = "AES-256-GCM"

	// KDF parameters. The key material is a high-entropy signature rather
	// than a human password, but the iteration count still has to hold up
	// against offline brute force if the signature ever leaks partially.
	kdfIterations = 310_000
	keySize       = 32

	saltSize  = 16
	nonceSize = 12
)

// Payload is the transport form of an encrypted vault entry. All byte fields
// are base64 (std) encoded.
type Payload struct {
	Version    int       `json:"version"`
	Algorithm  string    `json:"algorithm"`
	CipherText string    `json:"cipherText"`
	IV         string    `json:"iv"`
	Salt       string    `json:"salt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DeriveKey derives the AES-256 key for the given wallet signature and salt.
// Deterministic: the same (signature, salt) pair always yields the same key.
// An empty signature yields ErrInvalidKeyMaterial.
func DeriveKey(signature string, salt []byte) ([]byte, error) {
	if signature == "" {
		return nil, common.ErrInvalidKeyMaterial
	}
	return pbkdf2.Key([]byte(signature), salt, kdfIterations, keySize, sha256.New), nil
}

// Encrypt serializes v to JSON and seals it under a key derived from
// signature. A fresh random salt and nonce are generated on every call:
// the salt re-derives the key, and nonce reuse under one key would break GCM.
func Encrypt(v any, signature string) (*Payload, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	salt := common.GenerateRandByteArray(saltSize)
	key, err := DeriveKey(signature, salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	nonce := common.GenerateRandByteArray(nonceSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	return &Payload{
		Version:    FormatVersion,
		Algorithm:  Algorithm,
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Decrypt opens p with a key derived from signature and unmarshals the
// plaintext into out. It fails closed: any corruption, truncation, or wrong
// signature yields ErrDecryptionFailed and no partial plaintext.
func Decrypt(p *Payload, signature string, out any) error {
	if p == nil || p.Version != FormatVersion || p.Algorithm != Algorithm {
		return common.ErrDecryptionFailed
	}

	salt, err := base64.StdEncoding.DecodeString(p.Salt)
	if err != nil {
		return common.ErrDecryptionFailed
	}
	nonce, err := base64.StdEncoding.DecodeString(p.IV)
	if err != nil {
		return common.ErrDecryptionFailed
	}
	ciphertext, err := base64.StdEncoding.DecodeString(p.CipherText)
	if err != nil {
		return common.ErrDecryptionFailed
	}

	key, err := DeriveKey(signature, salt)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return common.ErrDecryptionFailed
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return common.ErrDecryptionFailed
	}
	if len(nonce) != aesgcm.NonceSize() {
		return common.ErrDecryptionFailed
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return common.ErrDecryptionFailed
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return common.ErrDecryptionFailed
	}
	return nil
}
