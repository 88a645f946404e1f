package secret

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// ProxyKeyPrefix marks keys issued to proxy callers.
const ProxyKeyPrefix = "llmb_"

const (
	proxyKeyLength   = 32
	proxyKeyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// NewProxyKey returns ProxyKeyPrefix followed by 32 random lowercase alphanumerics.
func NewProxyKey() (string, error) {
	var b strings.Builder
	b.Grow(len(ProxyKeyPrefix) + proxyKeyLength)
	b.WriteString(ProxyKeyPrefix)

	limit := big.NewInt(int64(len(proxyKeyAlphabet)))
	for range proxyKeyLength {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(proxyKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Mask shows the first and last four characters of key.
// Keys of eight characters or fewer are fully masked.
func Mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
