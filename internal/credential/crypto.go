package credential

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

var saltedPrefix = []byte("Salted__")

// cookieCloudKey derives the passphrase CookieCloud encrypts with.
func cookieCloudKey(uuid, password string) string {
	sum := md5.Sum([]byte(uuid + "-" + password))
	return hex.EncodeToString(sum[:])[:16]
}

// evpBytesToKey is OpenSSL's MD5 key derivation used by CryptoJS passphrases.
func evpBytesToKey(passphrase, salt []byte, keyLen, ivLen int) ([]byte, []byte) {
	var out, prev []byte
	for len(out) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen : keyLen+ivLen]
}

// decryptSalted decrypts a base64 OpenSSL "Salted__" AES-256-CBC payload.
func decryptSalted(passphrase, payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(raw) < 16 || !bytes.Equal(raw[:8], saltedPrefix) {
		return nil, errors.New("payload is not salted")
	}
	salt, data := raw[8:16], raw[16:]
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("payload has invalid length")
	}
	key, iv := evpBytesToKey([]byte(passphrase), salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)

	pad := int(plain[len(plain)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(plain) {
		return nil, errors.New("bad padding, wrong password?")
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			return nil, errors.New("bad padding, wrong password?")
		}
	}
	return plain[:len(plain)-pad], nil
}
