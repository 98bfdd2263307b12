package smallbin

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// CipherEngine provides symmetric encryption and decryption of byte
// payloads. Every encryption call uses a fresh random IV, so equal
// plaintexts never produce equal ciphertexts.
type CipherEngine interface {
	// Encrypt encrypts plaintext under a fresh random IV and returns
	// the ciphertext together with that IV
	Encrypt(plaintext []byte) (ciphertext, iv []byte, err error)

	// Decrypt decrypts ciphertext with the given IV
	Decrypt(ciphertext, iv []byte) ([]byte, error)

	// IVSize returns the size of IVs in bytes
	IVSize() int
}

// AESCBCEngine implements CipherEngine using AES-256-CBC with PKCS#7
// padding. CBC carries no authentication tag: a wrong key or tampered
// ciphertext surfaces as a padding failure on decryption, or as garbage
// plaintext that fails the checksum downstream.
type AESCBCEngine struct {
	block cipher.Block
}

// NewAESCBCEngine creates a new AES-256-CBC cipher engine
func NewAESCBCEngine(key []byte) (*AESCBCEngine, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("AES-256 requires a %d-byte key, got %d bytes: %w", keySize, len(key), ErrInvalidKey)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	return &AESCBCEngine{block: block}, nil
}

// Encrypt encrypts plaintext using AES-256-CBC with a fresh random IV.
// Empty plaintext is rejected.
func (e *AESCBCEngine) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	if len(plaintext) == 0 {
		return nil, nil, NewEncryptionError("encrypt", ErrEmptyPlaintext)
	}

	iv, err := generateIV()
	if err != nil {
		return nil, nil, NewEncryptionError("encrypt", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(e.block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, iv, nil
}

// Decrypt decrypts ciphertext using AES-256-CBC and strips the PKCS#7
// padding. A wrong password typically fails here with invalid padding.
func (e *AESCBCEngine) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, NewEncryptionError("decrypt",
			fmt.Errorf("IV must be %d bytes, got %d", aes.BlockSize, len(iv)))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, NewEncryptionError("decrypt",
			fmt.Errorf("ciphertext length %d is not a positive multiple of the block size", len(ciphertext)))
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(e.block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, NewEncryptionError("decrypt", err)
	}

	return plaintext, nil
}

// IVSize returns the IV size for AES-CBC (16 bytes)
func (e *AESCBCEngine) IVSize() int {
	return aes.BlockSize
}

// generateIV generates a random 16-byte initialization vector
func generateIV() ([]byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return iv, nil
}

// pkcs7Pad appends PKCS#7 padding up to the next block boundary. Input
// that is already block-aligned gains a full block of padding, so the
// result is never empty and always unpaddable.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad validates and strips PKCS#7 padding
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidPadding
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidPadding
		}
	}

	return data[:len(data)-padLen], nil
}
