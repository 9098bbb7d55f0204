// Package signature canonicalizes flat key/value payment requests and produces or
// verifies the keyed MD5 digest payment gateways use to authenticate them.
package signature

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "ventureflow/internal/errors"
)

// Field is the parameter name carrying the digest.
const Field = "signature"

// Canonicalize renders payload as key=value pairs sorted by key, values
// query-escaped, joined with '&'.
func Canonicalize(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(payload[k]))
	}
	return b.String()
}

// Sign returns the lowercase hex MD5 of the canonical string, suffixed with the
// passphrase when secret is not empty.
func Sign(payload map[string]string, secret string) string {
	s := Canonicalize(payload)
	if secret != "" {
		s += "&passphrase=" + url.QueryEscape(secret)
	}
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest and compares it in constant time.
func Verify(payload map[string]string, secret, digest string) bool {
	expected := Sign(payload, secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(digest))) == 1
}

// FromValues flattens an inbound form. Repeated keys and non UTF-8 text cannot be
// canonicalized and are rejected.
func FromValues(values url.Values) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) != 1 {
			return nil, apperrors.Encoding("field %q must have exactly one value", k)
		}
		if !utf8.ValidString(k) || !utf8.ValidString(vs[0]) {
			return nil, apperrors.Encoding("field %q is not valid UTF-8", k)
		}
		out[k] = vs[0]
	}
	return out, nil
}

// FromMap converts loosely typed input into a signable payload. Only string values
// are accepted.
func FromMap(in map[string]interface{}) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		s, ok := v.(string)
		if !ok {
			return nil, apperrors.Encoding("field %q must be a string, got %T", k, v)
		}
		out[k] = s
	}
	return out, nil
}

// Split removes the digest field from params and returns the remaining payload and
// the digest. The input map is not modified.
func Split(params map[string]string) (map[string]string, string) {
	payload := make(map[string]string, len(params))
	for k, v := range params {
		if k != Field {
			payload[k] = v
		}
	}
	return payload, params[Field]
}
