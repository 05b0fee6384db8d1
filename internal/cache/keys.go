package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// credentialParams identify the caller, not the response. A rotated key
// must not orphan cached lookups.
var credentialParams = []string{"api_key", "auth_token", "api_sig"}

// GenerateKey derives the cache key for a request URL as the hex SHA-256
// of its canonical form
func GenerateKey(rawURL string) string {
	sum := sha256.Sum256([]byte(canonicalRequest(rawURL)))
	return hex.EncodeToString(sum[:])
}

// canonicalRequest reduces a request URL to host, path and the sorted
// parameters that select the response. Scheme and fragment never change
// what the API returns. Unparseable input is used as is.
func canonicalRequest(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Host == "" && u.Scheme == "" {
		// schemeless "host/path" parses as a bare path
		if u, err = url.Parse("//" + rawURL); err != nil {
			return rawURL
		}
	}

	params := u.Query()
	for _, p := range credentialParams {
		params.Del(p)
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(u.Hostname()))
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		b.WriteString(":" + port)
	}
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if len(params) > 0 {
		b.WriteString("?" + params.Encode())
	}
	return b.String()
}
