package mfa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecoveryCodesEnvelopeVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"canonical codes", `{"codes":["aaaa-1111","bbbb-2222"]}`, []string{"aaaa-1111", "bbbb-2222"}},
		{"recovery_codes alias", `{"recovery_codes":["aaaa-1111"]}`, []string{"aaaa-1111"}},
		{"bare array", `["aaaa-1111","bbbb-2222","cccc-3333"]`, []string{"aaaa-1111", "bbbb-2222", "cccc-3333"}},
		{"data nesting canonical", `{"data":{"codes":["aaaa-1111"]}}`, []string{"aaaa-1111"}},
		{"data nesting alias", `{"data":{"recovery_codes":["bbbb-2222"]}}`, []string{"bbbb-2222"}},
		{"structured entries", `{"codes":[{"code":"aaaa-1111","used":false},{"code":"bbbb-2222","used":true}]}`, []string{"aaaa-1111"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecoveryCodes([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Codes)
		})
	}
}

func TestDecodeRecoveryCodesEmptyBodies(t *testing.T) {
	for _, payload := range []string{``, `null`, `[]`, `{"codes":[]}`, `{"codes":null}`, `{}`} {
		t.Run("payload "+payload, func(t *testing.T) {
			got, err := decodeRecoveryCodes([]byte(payload))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Empty(t, got.Codes)
			assert.False(t, got.Masked)
		})
	}
}

func TestDecodeRecoveryCodesMetadata(t *testing.T) {
	got, err := decodeRecoveryCodes([]byte(`{"codes":["aaaa"],"remaining":7,"masked":false,"expires_at":"2026-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.NotNil(t, got.Remaining)
	assert.Equal(t, 7, *got.Remaining)
	assert.Equal(t, 7, got.Count())
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, 2026, got.ExpiresAt.Year())
}

func TestDecodeRecoveryCodesRemainingAlias(t *testing.T) {
	got, err := decodeRecoveryCodes([]byte(`{"codes":["aaaa","bbbb"],"remaining_count":2}`))
	require.NoError(t, err)
	require.NotNil(t, got.Remaining)
	assert.Equal(t, 2, *got.Remaining)
}

func TestDecodeRecoveryCodesStructuredDerivesRemaining(t *testing.T) {
	payload := `{"codes":[{"code":"a","used":false},{"code":"b","used":true},{"code":"c","used":false}]}`

	got, err := decodeRecoveryCodes([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got.Codes)
	require.NotNil(t, got.Remaining)
	assert.Equal(t, 2, *got.Remaining)
}

func TestDecodeRecoveryCodesMasked(t *testing.T) {
	got, err := decodeRecoveryCodes([]byte(`{"codes":["••••-••••","••••-••••2"]}`))
	require.NoError(t, err)
	assert.True(t, got.Masked)

	got, err = decodeRecoveryCodes([]byte(`{"codes":["****-****"],"masked":true}`))
	require.NoError(t, err)
	assert.True(t, got.Masked)
}

func TestDecodeRecoveryCodesDeduplicates(t *testing.T) {
	got, err := decodeRecoveryCodes([]byte(`["a","b","a","c","b"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got.Codes)
}

func TestDecodeRecoveryCodesRejectsGarbage(t *testing.T) {
	_, err := decodeRecoveryCodes([]byte(`{"codes":"not-a-list"}`))
	assert.Error(t, err)

	_, err = decodeRecoveryCodes([]byte(`not json`))
	assert.Error(t, err)
}

func TestCountFallsBackToCodeCount(t *testing.T) {
	codes := &RecoveryCodes{Codes: []string{"a", "b", "c"}}
	assert.Equal(t, 3, codes.Count())
}
