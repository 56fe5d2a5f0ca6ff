package feed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the upstream request signature: every non-empty field
// except "sign" is rendered as "key:value", the pairs are sorted
// lexicographically by key, joined with ";", and HMAC-SHA256'd with the
// shared secret. The result is hex encoded.
func Sign(params map[string]string, secret string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" || k == "sign" {
			continue
		}
		pairs = append(pairs, k+":"+v)
	}
	sort.Strings(pairs)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, ";")))
	return hex.EncodeToString(mac.Sum(nil))
}
