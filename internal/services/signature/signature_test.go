package signature

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"testing"

	apperrors "ventureflow/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]string
		want    string
	}{
		{
			name:    "sorted by key",
			payload: map[string]string{"b": "2", "a": "1", "c": "3"},
			want:    "a=1&b=2&c=3",
		},
		{
			name:    "values are query escaped",
			payload: map[string]string{"item_name": "Investment in Acme", "email": "a@b.co"},
			want:    "email=a%40b.co&item_name=Investment+in+Acme",
		},
		{
			name:    "byte order puts upper case first",
			payload: map[string]string{"a": "x", "B": "y"},
			want:    "B=y&a=x",
		},
		{
			name:    "empty",
			payload: map[string]string{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonicalize(tt.payload))
		})
	}
}

func TestSign_OrderIndependent(t *testing.T) {
	keys := []string{"merchant_id", "amount", "item_name", "m_payment_id", "name_first", "email_address"}
	values := []string{"10000100", "1500.00", "Investment in Acme", "offer-1", "Jane", "jane@example.com"}

	first := map[string]string{}
	for i := range keys {
		first[keys[i]] = values[i]
	}
	second := map[string]string{}
	for i := len(keys) - 1; i >= 0; i-- {
		second[keys[i]] = values[i]
	}

	assert.Equal(t, Sign(first, "secret"), Sign(second, "secret"))
}

func TestSign_PassphraseSuffix(t *testing.T) {
	payload := map[string]string{"amount": "1500.00", "merchant_id": "10000100"}

	sum := md5.Sum([]byte("amount=1500.00&merchant_id=10000100&passphrase=jt7NOE43FZPn"))
	assert.Equal(t, hex.EncodeToString(sum[:]), Sign(payload, "jt7NOE43FZPn"))

	plain := md5.Sum([]byte("amount=1500.00&merchant_id=10000100"))
	assert.Equal(t, hex.EncodeToString(plain[:]), Sign(payload, ""))
}

func TestVerify(t *testing.T) {
	payload := map[string]string{"amount": "1500.00", "m_payment_id": "offer-1", "payment_status": "COMPLETE"}
	digest := Sign(payload, "secret")

	assert.True(t, Verify(payload, "secret", digest))
	assert.False(t, Verify(payload, "other", digest))
	assert.False(t, Verify(payload, "secret", ""))

	for i := range digest {
		flipped := []byte(digest)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		assert.False(t, Verify(payload, "secret", string(flipped)), "flipped position %d", i)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	payload := map[string]string{"amount": "1500.00"}
	digest := Sign(payload, "")

	payload["amount"] = "15.00"
	assert.False(t, Verify(payload, "", digest))
}

func TestFromValues(t *testing.T) {
	got, err := FromValues(url.Values{"amount": {"1500.00"}, "signature": {"abc"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"amount": "1500.00", "signature": "abc"}, got)

	_, err = FromValues(url.Values{"amount": {"1", "2"}})
	assert.True(t, apperrors.Is(err, apperrors.ErrEncoding))

	_, err = FromValues(url.Values{"name": {"\xff\xfe"}})
	assert.True(t, apperrors.Is(err, apperrors.ErrEncoding))
}

func TestFromMap(t *testing.T) {
	_, err := FromMap(map[string]interface{}{"amount": 1500.0})
	assert.True(t, apperrors.Is(err, apperrors.ErrEncoding))

	got, err := FromMap(map[string]interface{}{"amount": "1500.00"})
	require.NoError(t, err)
	assert.Equal(t, "1500.00", got["amount"])
}

func TestSplit(t *testing.T) {
	params := map[string]string{"amount": "1.00", "signature": "abc"}
	payload, digest := Split(params)

	assert.Equal(t, "abc", digest)
	assert.Equal(t, map[string]string{"amount": "1.00"}, payload)
	assert.Contains(t, params, "signature")
}
