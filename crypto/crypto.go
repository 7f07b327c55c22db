// Package crypto implements the signing, verification, hashing, and
// address-encoding primitives shared by the chain and wallet layers.
//
// Signing uses ECDSA over secp256k1 (github.com/decred/dcrd/dcrec/secp256k1/v4),
// matching the scheme described by the original Python source
// (ecdsa.SigningKey with curve SECP256k1). Addresses follow the
// Base58Check convention: RIPEMD160(SHA256(pubkey)) with a 4-byte
// double-SHA256 checksum, base58-encoded.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for Bitcoin-style address hashing
)

// PrivateKey is a secp256k1 signing key.
type PrivateKey = secp256k1.PrivateKey

// PublicKey is a secp256k1 verifying key.
type PublicKey = secp256k1.PublicKey

// GenerateKeyPair produces a fresh private key and its corresponding
// P2PKH-style address. This is the core's side of the Wallet collaborator
// interface named in spec.md §6.
func GenerateKeyPair() (*PrivateKey, string, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate private key")
	}
	addr, err := AddressFromPublicKey(SerializeUncompressedPublicKey(priv.PubKey()))
	if err != nil {
		return nil, "", err
	}
	return priv, addr, nil
}

// SerializeUncompressedPublicKey returns the 0x04-prefixed X||Y encoding
// of pub, as stored on a signed transaction input.
func SerializeUncompressedPublicKey(pub *PublicKey) []byte {
	return pub.SerializeUncompressed()
}

// ParsePublicKey reconstructs a verifying key from its uncompressed
// serialization.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(err, "invalid public key encoding")
	}
	return pub, nil
}

// Sign signs the hex-encoded digest (a txid) with priv and returns the
// DER-encoded signature, matching the per-input signature field of a
// transaction.
func Sign(priv *PrivateKey, digestHex string) ([]byte, error) {
	hash, err := decodeDigest(digestHex)
	if err != nil {
		return nil, err
	}
	sig := ecdsa.Sign(priv, hash)
	return sig.Serialize(), nil
}

// Verify checks that sig is a valid ECDSA signature over digestHex by the
// key encoded in pubKeyBytes.
func Verify(pubKeyBytes, sig []byte, digestHex string) bool {
	hash, err := decodeDigest(digestHex)
	if err != nil {
		return false
	}
	pub, err := ParsePublicKey(pubKeyBytes)
	if err != nil {
		return false
	}
	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsedSig.Verify(hash, pub)
}

func decodeDigest(digestHex string) ([]byte, error) {
	b, err := hex.DecodeString(digestHex)
	if err != nil {
		return nil, errors.Wrap(err, "digest is not valid hex")
	}
	return b, nil
}

// Sha256d computes SHA256(SHA256(b)), the block-hash digest function.
func Sha256d(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Sha256Hex computes a single SHA256 pass over b, hex-encoded.
func Sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Sha256dHex computes Sha256d, hex-encoded.
func Sha256dHex(b []byte) string {
	return hex.EncodeToString(Sha256d(b))
}

// AddressFromPublicKey derives a base58check address from an uncompressed
// public key: base58( RIPEMD160(SHA256(pubkey)) || checksum ), where
// checksum is the first 4 bytes of SHA256(SHA256(RIPEMD160(SHA256(pubkey)))).
func AddressFromPublicKey(pubKeyBytes []byte) (string, error) {
	shaHash := sha256.Sum256(pubKeyBytes)
	ripemd := ripemd160.New()
	if _, err := ripemd.Write(shaHash[:]); err != nil {
		return "", errors.Wrap(err, "failed to hash public key")
	}
	pubKeyHash := ripemd.Sum(nil)

	checksum := Sha256d(pubKeyHash)[:4]
	payload := append(append([]byte{}, pubKeyHash...), checksum...)
	return base58.Encode(payload), nil
}

// PubKeyHashFromAddress recovers the RIPEMD160(SHA256(pubkey)) payload from
// a base58check address, verifying its checksum.
func PubKeyHashFromAddress(address string) ([]byte, error) {
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base58 address")
	}
	if len(decoded) < 5 {
		return nil, errors.New("address too short")
	}
	payload, checksum := decoded[:len(decoded)-4], decoded[len(decoded)-4:]
	want := Sha256d(payload)[:4]
	for i := range checksum {
		if checksum[i] != want[i] {
			return nil, errors.New("address checksum mismatch")
		}
	}
	return payload, nil
}
