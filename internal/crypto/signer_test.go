package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *AuditSigner {
	t.Helper()
	secret := base64.StdEncoding.EncodeToString([]byte("test-hmac-secret-32-bytes-long!!"))
	signer, err := NewAuditSigner(secret)
	require.NoError(t, err)
	return signer
}

func TestNewAuditSigner(t *testing.T) {
	_, err := NewAuditSigner("")
	assert.Error(t, err)

	_, err = NewAuditSigner("not base64 !!!")
	assert.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	signer := testSigner(t)

	fields := []string{"entry-id", "efile_submitted", "sub-id", "info", "2026-03-15T10:30:00Z"}
	sig := signer.Sign(fields...)
	assert.NotEmpty(t, sig)

	assert.True(t, signer.Verify(sig, fields...))
}

func TestVerifyDetectsTampering(t *testing.T) {
	signer := testSigner(t)

	sig := signer.Sign("id", "efile_submitted", "res", "info", "2026-03-15T10:30:00Z")

	// Any altered field invalidates the signature.
	assert.False(t, signer.Verify(sig, "id", "efile_rejected", "res", "info", "2026-03-15T10:30:00Z"))
	assert.False(t, signer.Verify(sig, "id", "efile_submitted", "res", "info", "2026-03-15T10:31:00Z"))
	assert.False(t, signer.Verify("deadbeef", "id", "efile_submitted", "res", "info", "2026-03-15T10:30:00Z"))
}

func TestSignDeterministic(t *testing.T) {
	signer := testSigner(t)
	assert.Equal(t, signer.Sign("a", "b"), signer.Sign("a", "b"))
	assert.NotEqual(t, signer.Sign("a", "b"), signer.Sign("a", "c"))
}

func TestMaskSSN(t *testing.T) {
	assert.Equal(t, "***-**-6789", MaskSSN("123456789"))
	assert.Equal(t, "***", MaskSSN("12"))
	assert.Equal(t, "***", MaskSSN(""))
}
