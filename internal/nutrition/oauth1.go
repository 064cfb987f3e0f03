package nutrition

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// signer produces OAuth1.0a HMAC-SHA1 request signatures
type signer struct {
	consumerKey    string
	consumerSecret string
}

// sign computes the oauth_signature for a request. params must already contain
// the oauth_* protocol parameters and any body/query parameters; tokenSecret is
// empty for the request-token call.
func (s *signer) sign(method, rawURL string, params map[string]string, tokenSecret string) string {
	base := signatureBase(method, rawURL, params)
	key := percentEncode(s.consumerSecret) + "&" + percentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// oauthParams returns the baseline oauth_* protocol parameters for one request
func (s *signer) oauthParams() map[string]string {
	return map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_version":          "1.0",
	}
}

// signatureBase builds the canonical base string: uppercase method, encoded
// URL, and the sorted, percent-encoded parameter list.
func signatureBase(method, rawURL string, params map[string]string) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
	}
	sort.Strings(pairs)

	return strings.ToUpper(method) + "&" +
		percentEncode(rawURL) + "&" +
		percentEncode(strings.Join(pairs, "&"))
}

// percentEncode implements the RFC 3986 unreserved-character encoding OAuth1
// requires; url.QueryEscape is not equivalent (it emits '+' for spaces).
func percentEncode(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteString("%" + strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return c >= 'A' && c <= 'Z' ||
		c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func nonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to read random nonce: %v", err))
	}
	return hex.EncodeToString(buf)
}

// parseTokenResponse decodes a form-encoded token response body
// (oauth_token=...&oauth_token_secret=...).
func parseTokenResponse(body string) (token, secret string, err error) {
	values, err := url.ParseQuery(body)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse token response: %w", err)
	}

	token = values.Get("oauth_token")
	secret = values.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return "", "", fmt.Errorf("token response missing oauth_token or oauth_token_secret: %q", body)
	}
	return token, secret, nil
}
