package rediskey

import "fmt"

// Key namespaces (global convention across services)
const (
	NoncePrefix    = "wallet:nonce"
	LockoutPrefix  = "verify:lockout"
	SequencePrefix = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildNonceKey returns "wallet:nonce:{nonce}"
func BuildNonceKey(nonce string) string {
	return NamespaceKey(NoncePrefix, nonce)
}

// BuildLockoutKey returns "verify:lockout:{subjectID}"
func BuildLockoutKey(subjectID string) string {
	return NamespaceKey(LockoutPrefix, subjectID)
}
