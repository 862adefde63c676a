package otc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Share is what a deal link carries: the sealed payload and its key.
type Share struct {
	TradeID      string `json:"trade_id"`
	MultiPayload string `json:"multi_payload"`
	PKey         string `json:"p_key"`
	IV           string `json:"iv"`
}

var encoding = base64.RawURLEncoding

func seal(plaintext []byte) (payload, pkey, iv string, err error) {
	key := make([]byte, 32)
	if _, err = rand.Read(key); err != nil {
		return "", "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", "", "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", "", "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return encoding.EncodeToString(sealed), encoding.EncodeToString(key), encoding.EncodeToString(nonce), nil
}

func open(s Share) ([]byte, error) {
	key, err := encoding.DecodeString(s.PKey)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	nonce, err := encoding.DecodeString(s.IV)
	if err != nil {
		return nil, fmt.Errorf("invalid iv: %w", err)
	}
	sealed, err := encoding.DecodeString(s.MultiPayload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid iv length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init gcm: %w", err)
	}
	return gcm, nil
}
