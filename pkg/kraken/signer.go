package kraken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
)

// DecodeSecret decodes the base64-encoded API secret into the raw HMAC key.
func DecodeSecret(encoded string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}
	return secret, nil
}

// Sign computes the API-Sign header value for a private REST request.
//
// The signed message is the URL path concatenated with
// SHA256(nonce + postdata), where postdata is the URL-encoded form body
// exactly as transmitted. The digest is HMAC-SHA512 keyed with the decoded
// secret, base64-encoded. The form must already contain the nonce field.
func Sign(secret []byte, path, nonce string, form url.Values) string {
	postdata := form.Encode()

	sha := sha256.New()
	sha.Write([]byte(nonce + postdata))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha.Sum(nil))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
