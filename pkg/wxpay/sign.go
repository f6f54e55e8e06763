package wxpay

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// SignField is the name of the signature field in requests and responses.
const SignField = "sign"

// CanonicalString builds the string the platform signs: non-empty fields
// other than sign, sorted by key, joined as k=v with '&'. Values are used
// raw, never percent-encoded.
func CanonicalString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if k == SignField || v == "" {
			continue
		}
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
		b.WriteString(fields[k])
	}
	return b.String()
}

// Sign returns the upper-case hex MD5 of the canonical string with
// "&key=<secret>" appended.
func Sign(fields map[string]string, key string) string {
	sum := md5.Sum([]byte(CanonicalString(fields) + "&key=" + key))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// VerifySign recomputes the signature over fields and compares it, case
// sensitively, with the sign field.
func VerifySign(fields map[string]string, key string) bool {
	got := fields[SignField]
	if got == "" {
		return false
	}
	want := Sign(fields, key)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
