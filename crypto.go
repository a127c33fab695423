package inform

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"
)

const gcmTagSize = 16

// ParseKey decodes a hex encoded AES key. Devices use AES-128, but
// 24 and 32 byte keys are accepted as well.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormatInvalid, err)
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

func checkKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	}
	return fmt.Errorf("%w: must be 16, 24 or 32 bytes long, got %d", ErrKeyFormatInvalid, len(key))
}

// Decrypt decodes the payload with the cipher announced in the header.
// Unencrypted payloads are returned as is, and the key is not checked.
//
// AES-CBC is not authenticated: a wrong key or tampered ciphertext
// usually fails the padding check, but may also yield garbage.
func Decrypt(h *Header, payload, key []byte) ([]byte, error) {
	switch h.Encryption {
	case EncryptionNone:
		return payload, nil
	case EncryptionCBC:
		return decryptCBC(key, h.IV, payload)
	case EncryptionGCM:
		return decryptGCM(key, h.IV, h.Raw, payload)
	}
	return nil, fmt.Errorf("unsupported encryption: %v", h.Encryption)
}

// decryptCBC decodes the payload with the given key.
func decryptCBC(key, iv, data []byte) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(data))
	copy(ciphertext, data)
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errInvalidPadding("data is not padded")
	}

	// err would be a crypto.KeySizeError, which is handled above
	block, _ := aes.NewCipher(key)
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(ciphertext, ciphertext)

	return pkcs7unpad(ciphertext)
}

// decryptGCM opens the payload, authenticating the raw header as
// additional data. The tag is expected at the end of the payload.
func decryptGCM(key, iv, aad, data []byte) ([]byte, error) {
	aead, err := newGCM(key, len(iv))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, iv, data, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailure, err)
	}
	return plain, nil
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	block, _ := aes.NewCipher(key)
	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

// pkcs7unpad removes padding from a decoded stream.
func pkcs7unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errInvalidPadding("no data")
	}
	c := b[len(b)-1]
	n := int(c)
	if n == 0 || n > len(b) || n > aes.BlockSize {
		return nil, errInvalidPadding("data is not padded")
	}
	for i := 0; i < n; i++ {
		if b[len(b)-n+i] != c {
			return nil, errInvalidPadding("structure invalid")
		}
	}
	return b[:len(b)-n], nil
}

func pkcs7pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

// encryptedLength is the ciphertext length for a plaintext of n bytes.
func encryptedLength(e Encryption, n int) int {
	switch e {
	case EncryptionCBC:
		return n + aes.BlockSize - n%aes.BlockSize
	case EncryptionGCM:
		return n + gcmTagSize
	}
	return n
}

// encrypt is the inverse of Decrypt. For AES-GCM, h.Raw must already hold
// the final header.
func encrypt(h *Header, plain, key []byte) ([]byte, error) {
	switch h.Encryption {
	case EncryptionNone:
		return plain, nil
	case EncryptionCBC:
		if err := checkKey(key); err != nil {
			return nil, err
		}
		buf := pkcs7pad(append([]byte(nil), plain...))
		block, _ := aes.NewCipher(key)
		cipher.NewCBCEncrypter(block, h.IV).CryptBlocks(buf, buf)
		return buf, nil
	case EncryptionGCM:
		aead, err := newGCM(key, len(h.IV))
		if err != nil {
			return nil, err
		}
		return aead.Seal(nil, h.IV, plain, h.Raw), nil
	}
	return nil, fmt.Errorf("unsupported encryption: %v", h.Encryption)
}
