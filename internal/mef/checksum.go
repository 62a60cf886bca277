package mef

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// Algorithm selects the digest used to stamp submission payloads.
type Algorithm string

const (
	AlgorithmSHA256 Algorithm = "SHA-256"
	AlgorithmSHA512 Algorithm = "SHA-512"
)

// ValidAlgorithm reports whether alg is a supported checksum algorithm.
func ValidAlgorithm(alg Algorithm) bool {
	return alg == AlgorithmSHA256 || alg == AlgorithmSHA512
}

// Checksum computes the hex digest of a submission payload. Used at build time
// to stamp the submission and at audit-replay time to detect tampering by
// recomputing and comparing.
func Checksum(payload []byte, alg Algorithm) (string, error) {
	var h hash.Hash
	switch alg {
	case AlgorithmSHA256:
		h = sha256.New()
	case AlgorithmSHA512:
		h = sha512.New()
	default:
		return "", fmt.Errorf("unsupported checksum algorithm %q", alg)
	}
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum recomputes the digest of payload and compares it against the
// stored value.
func VerifyChecksum(payload []byte, alg Algorithm, expected string) (bool, error) {
	actual, err := Checksum(payload, alg)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
