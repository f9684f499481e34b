package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"sort"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// encodeComponent escapes s the way the gateway's reference clients do:
// encodeURIComponent semantics, then "%20" replaced by "+".
func encodeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/2)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case unreserved(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0f])
		}
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// pair is one already-encoded key/value of a canonical string.
type pair struct {
	key   string
	value string
}

// join sorts pairs by key and renders them as k=v&k=v.
func join(pairs []pair) string {
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var b strings.Builder
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String()
}

// canonicalize encodes params and returns the canonical signing string.
func canonicalize(params map[string]string) string {
	pairs := make([]pair, 0, len(params))
	for k, v := range params {
		if isHashKey(k) {
			continue
		}
		pairs = append(pairs, pair{key: encodeComponent(k), value: encodeComponent(v)})
	}
	return join(pairs)
}

// canonicalizeRaw builds the signing string from a raw query, keeping the
// sender's percent-encoding of every pair untouched.
func canonicalizeRaw(rawQuery string) (canonical, hash string) {
	rawQuery = strings.TrimPrefix(rawQuery, "?")

	var pairs []pair
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		switch k {
		case paramSecureHash:
			hash = v
			continue
		case paramSecureHashType:
			continue
		}
		pairs = append(pairs, pair{key: k, value: v})
	}
	return join(pairs), hash
}

func isHashKey(k string) bool {
	return k == paramSecureHash || k == paramSecureHashType
}

func sign(secret []byte, data string) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// equalHash is an exact, constant-time string comparison.
func equalHash(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}
