package mef

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumKnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		alg      Algorithm
		expected string
	}{
		{
			name:     "sha256 abc",
			payload:  "abc",
			alg:      AlgorithmSHA256,
			expected: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
		{
			name:     "sha512 empty",
			payload:  "",
			alg:      AlgorithmSHA512,
			expected: "cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
		},
		{
			name:     "sha512 pangram",
			payload:  "The quick brown fox jumps over the lazy dog",
			alg:      AlgorithmSHA512,
			expected: "07e547d9586f6a73f73fbac0435ed76951218fb7d0c8d788a309d785436bbb642e93a252a954f23912547d1e8a3b5ed6e1bfd7097821233fa0538f3db854fee6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Checksum([]byte(tt.payload), tt.alg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestChecksumUnsupportedAlgorithm(t *testing.T) {
	_, err := Checksum([]byte("payload"), Algorithm("MD5"))
	assert.Error(t, err)

	_, err = Checksum([]byte("payload"), Algorithm(""))
	assert.Error(t, err)
}

func TestVerifyChecksum(t *testing.T) {
	payload := []byte(`<ReturnData>stable bytes</ReturnData>`)

	sum, err := Checksum(payload, AlgorithmSHA256)
	require.NoError(t, err)

	ok, err := VerifyChecksum(payload, AlgorithmSHA256, sum)
	require.NoError(t, err)
	assert.True(t, ok)

	// Any byte flip must be detected.
	tampered := append([]byte{}, payload...)
	tampered[0] = 'X'
	ok, err = VerifyChecksum(tampered, AlgorithmSHA256, sum)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidAlgorithm(t *testing.T) {
	assert.True(t, ValidAlgorithm(AlgorithmSHA256))
	assert.True(t, ValidAlgorithm(AlgorithmSHA512))
	assert.False(t, ValidAlgorithm("sha-256"))
	assert.False(t, ValidAlgorithm("MD5"))
}
