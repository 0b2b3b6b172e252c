// Package secret 使用 NaCl secretbox 密封列表管理员密码。
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrInvalidCiphertext 密文格式错误或认证失败
var ErrInvalidCiphertext = errors.New("invalid sealed secret")

// Box 对称密封器
type Box struct {
	key [keySize]byte
}

// NewBox 使用 32 字节密钥创建密封器
func NewBox(key []byte) (*Box, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", keySize, len(key))
	}
	box := &Box{}
	copy(box.key[:], key)
	return box, nil
}

// Seal 加密明文，返回 base64(nonce || box)
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open 解密 Seal 的输出
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrInvalidCiphertext
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
