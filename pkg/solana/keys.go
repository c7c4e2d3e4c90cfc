package solana

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const LamportsPerSOL int64 = 1_000_000_000

var (
	ErrBadAddress   = errors.New("malformed base58 address")
	ErrBadSignature = errors.New("malformed base58 signature")
	ErrBadSecretKey = errors.New("malformed base58 secret key")
)

// DecodeAddress decodes a base58 account address into an ed25519 public key.
// Fails closed on anything that is not exactly a 32-byte key.
func DecodeAddress(addr string) (ed25519.PublicKey, error) {
	if addr == "" {
		return nil, ErrBadAddress
	}
	raw := base58.Decode(addr)
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrBadAddress
	}
	return ed25519.PublicKey(raw), nil
}

// DecodeSignature decodes a base58 detached signature.
func DecodeSignature(sig string) ([]byte, error) {
	if sig == "" {
		return nil, ErrBadSignature
	}
	raw := base58.Decode(sig)
	if len(raw) != ed25519.SignatureSize {
		return nil, ErrBadSignature
	}
	return raw, nil
}

// VerifyDetached reports whether signature is a valid ed25519 signature over
// message by the key behind address. Decode failures are returned as errors so
// callers can distinguish malformed input from a failed verification.
func VerifyDetached(address string, message, signature []byte) (bool, error) {
	pub, err := DecodeAddress(address)
	if err != nil {
		return false, err
	}
	if len(signature) != ed25519.SignatureSize {
		return false, ErrBadSignature
	}
	return ed25519.Verify(pub, message, signature), nil
}

// Keypair wraps the custodial escrow signing key. The secret never leaves this
// type: String() prints only the public address.
type Keypair struct {
	priv ed25519.PrivateKey
}

// KeypairFromBase58 accepts either a 32-byte seed or a 64-byte expanded secret
// (seed followed by public key), both base58-encoded.
func KeypairFromBase58(secret string) (*Keypair, error) {
	raw := base58.Decode(secret)
	switch len(raw) {
	case ed25519.SeedSize:
		return &Keypair{priv: ed25519.NewKeyFromSeed(raw)}, nil
	case ed25519.PrivateKeySize:
		return &Keypair{priv: ed25519.PrivateKey(raw)}, nil
	default:
		return nil, ErrBadSecretKey
	}
}

// Address returns the base58-encoded public key.
func (k *Keypair) Address() string {
	pub := k.priv.Public().(ed25519.PublicKey)
	return base58.Encode(pub)
}

// Sign produces a detached signature over message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// SignBase58 produces a base58-encoded detached signature over message.
func (k *Keypair) SignBase58(message []byte) string {
	return base58.Encode(k.Sign(message))
}

// Zero wipes the secret key material.
func (k *Keypair) Zero() {
	for i := range k.priv {
		k.priv[i] = 0
	}
	k.priv = nil
}

func (k *Keypair) String() string {
	return fmt.Sprintf("solana.Keypair(%s)", k.Address())
}
