package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateURLToken 生成 URL-safe 的随机 token，长度约为 4/3*n 字符
// n 为原始随机字节数，推荐 24 或 32
func GenerateURLToken(n int) (string, error) {
	if n <= 0 {
		n = 24
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	// 使用 RawURLEncoding，避免出现 '=' 填充与 '+' '/' 字符
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewPKCEVerifier returns a code verifier and its S256 challenge.
func NewPKCEVerifier() (verifier, challenge string, err error) {
	// 32 bytes encode to 43 characters, the minimum verifier length.
	verifier, err = GenerateURLToken(32)
	if err != nil {
		return "", "", err
	}
	return verifier, PKCEChallenge(verifier), nil
}

// PKCEChallenge derives the S256 code challenge of verifier.
func PKCEChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
