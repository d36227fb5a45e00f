package messenger

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strings"

	"github.com/pscheid92/pagegate/internal/domain"
)

const (
	HeaderSignature    = "X-Hub-Signature"
	HeaderSignature256 = "X-Hub-Signature-256"
)

// Verifier checks the HMAC signature the platform attaches to webhook
// deliveries, keyed with the app secret.
type Verifier struct {
	secret   []byte
	required bool
}

// NewVerifier returns a verifier for appSecret. When required is false a
// delivery without any signature header is accepted.
func NewVerifier(appSecret string, required bool) *Verifier {
	return &Verifier{secret: []byte(appSecret), required: required}
}

// VerifyRequest verifies body against the signature headers of a request.
// X-Hub-Signature-256 wins when both headers are present.
func (v *Verifier) VerifyRequest(body []byte, header http.Header) error {
	if sig := header.Get(HeaderSignature256); sig != "" {
		return v.Verify(body, sig)
	}
	return v.Verify(body, header.Get(HeaderSignature))
}

// Verify checks a single "<algorithm>=<hex digest>" header value.
// An empty value yields nil, or domain.ErrSignatureMissing in strict mode.
func (v *Verifier) Verify(body []byte, signature string) error {
	if signature == "" {
		if v.required {
			return domain.ErrSignatureMissing
		}
		return nil
	}

	algorithm, digest, ok := strings.Cut(signature, "=")
	if !ok {
		return fmt.Errorf("%w: malformed header", domain.ErrSignatureMismatch)
	}

	var newHash func() hash.Hash
	switch strings.ToLower(algorithm) {
	case "sha1":
		newHash = sha1.New
	case "sha256":
		newHash = sha256.New
	default:
		return fmt.Errorf("%w: unsupported algorithm %q", domain.ErrSignatureMismatch, algorithm)
	}

	got, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: digest is not hex", domain.ErrSignatureMismatch)
	}

	mac := hmac.New(newHash, v.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domain.ErrSignatureMismatch
	}
	return nil
}
