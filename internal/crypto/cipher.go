package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	KeySize   = 32
	NonceSize = 16
	TagSize   = 16
)

var (
	// ErrIntegrity 表示认证标签校验失败或密文字段格式错误。
	ErrIntegrity  = errors.New("message integrity check failed")
	ErrMissingKey = errors.New("encryption key is not configured")
	ErrInvalidKey = errors.New("encryption key must be base64 of 32 bytes")
)

// Sealed 是一次加密的完整产物，三个字段必须一起存取。
type Sealed struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// Cipher 使用进程级密钥做 AES-256-GCM 加解密，本身无状态、可并发使用。
type Cipher struct {
	aead cipher.AEAD
}

// New 用原始 32 字节密钥构造 Cipher。
func New(key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// NewFromBase64 解析配置中的 base64 密钥。
func NewFromBase64(encoded string) (*Cipher, error) {
	if encoded == "" {
		return nil, ErrMissingKey
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return New(key)
}

// Encrypt 每次调用都生成新的随机 nonce，调用方无法传入 nonce。
func (c *Cipher) Encrypt(plaintext string) (Sealed, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, err
	}
	out := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(out) - TagSize
	return Sealed{
		Ciphertext: base64.StdEncoding.EncodeToString(out[:split]),
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(out[split:]),
	}, nil
}

// Decrypt 校验认证标签后返回明文，任何失败都归为 ErrIntegrity。
func (c *Cipher) Decrypt(s Sealed) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrIntegrity, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil || len(nonce) != NonceSize {
		return "", fmt.Errorf("%w: malformed iv", ErrIntegrity)
	}
	tag, err := base64.StdEncoding.DecodeString(s.AuthTag)
	if err != nil || len(tag) != TagSize {
		return "", fmt.Errorf("%w: malformed auth tag", ErrIntegrity)
	}
	buf := make([]byte, 0, len(ct)+len(tag))
	buf = append(buf, ct...)
	buf = append(buf, tag...)
	plain, err := c.aead.Open(nil, nonce, buf, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return string(plain), nil
}
