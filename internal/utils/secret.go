package utils

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const secretKeyLength = 32

var ErrInvalidSecret = errors.New("invalid encrypted secret")

// EncryptSecret seals a stored credential with AES-256-CBC. The stored form
// is base64(iv || base64(ciphertext)), which keeps rows written by the
// previous installation readable.
func EncryptSecret(plaintext, key string) (string, error) {
	block, err := aes.NewCipher(secretKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	inner := base64.StdEncoding.EncodeToString(ciphertext)
	return base64.StdEncoding.EncodeToString(append(iv, inner...)), nil
}

func DecryptSecret(encoded, key string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) <= aes.BlockSize {
		return "", ErrInvalidSecret
	}
	iv, inner := raw[:aes.BlockSize], raw[aes.BlockSize:]

	ciphertext, err := base64.StdEncoding.DecodeString(string(inner))
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrInvalidSecret
	}

	block, err := aes.NewCipher(secretKey(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// secretKey uses the first 32 bytes of the configured key, zero padded when
// shorter.
func secretKey(key string) []byte {
	k := make([]byte, secretKeyLength)
	copy(k, key)
	return k
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidSecret
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidSecret
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidSecret
		}
	}
	return data[:len(data)-n], nil
}
