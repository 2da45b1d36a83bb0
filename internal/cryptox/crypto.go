// Package cryptox implements the client-side encryption applied to upload
// payloads before they leave the device: AES-GCM with a key derived from
// the user passphrase via Argon2id.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/mzhadan/syncbox/internal/common"
	"golang.org/x/crypto/argon2"
)

// DeriveKey derives a 32-byte AES key from a passphrase and a per-install
// salt using Argon2id.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// EncryptBlob encrypts plaintext with AES-GCM under the given key.
//
// The key must be a valid AES key length (16, 24 or 32 bytes). A fresh
// random nonce is generated per call; ciphertext and nonce are returned
// separately so they can be stored in distinct columns.
func EncryptBlob(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptBlob reverses EncryptBlob given the same key and nonce.
func DecryptBlob(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
