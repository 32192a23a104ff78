package config

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"os"

	"tenantledger/pkg/utils"
)

// decryptKeyed decodes a hex-encoded AES-GCM ciphertext (nonce prefix) using
// the raw key bytes read from keyPath: the "ciphertext decryptable by the
// key at config/<env>.key" half of the password field switch.
// ResolvePassword's direct passthrough covers the plaintext half.
func decryptKeyed(ciphertextHex, keyPath string) (string, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return "", utils.Wrap(err, "read password key file")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", utils.Wrap(err, "build AES cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", utils.Wrap(err, "build AES-GCM")
	}
	raw, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return "", utils.Wrap(err, "decode password ciphertext")
	}
	if len(raw) < gcm.NonceSize() {
		return "", utils.Wrap(errShortCiphertext, "decrypt password")
	}
	nonce, data := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", utils.Wrap(err, "decrypt password")
	}
	return string(plain), nil
}

type shortCiphertextError struct{}

func (shortCiphertextError) Error() string { return "config: ciphertext shorter than nonce" }

var errShortCiphertext = shortCiphertextError{}
