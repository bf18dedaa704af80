package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const secretPrefix = "whsec_"

var (
	ErrMissingHeaders    = errors.New("missing signature headers")
	ErrInvalidTimestamp  = errors.New("invalid signature timestamp")
	ErrTimestampExpired  = errors.New("signature timestamp outside tolerance")
	ErrInvalidSignature  = errors.New("no matching signature")
	ErrSecretNotProvided = errors.New("webhook secret not configured")
)

// Verifier checks svix-style signatures: HMAC-SHA256 over "{id}.{timestamp}.{body}",
// delivered as space-separated "v1,<base64>" entries.
type Verifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier decodes secret, with or without its whsec_ prefix. A secret that
// is not valid base64 is used as raw key bytes.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretNotProvided
	}
	raw := strings.TrimPrefix(secret, secretPrefix)
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		key = []byte(raw)
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Verifier{key: key, tolerance: tolerance, now: time.Now}, nil
}

// Verify validates the signature headers of a delivery against its raw body.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	id := firstHeader(h, "svix-id", "webhook-id")
	ts := firstHeader(h, "svix-timestamp", "webhook-timestamp")
	sigs := firstHeader(h, "svix-signature", "webhook-signature")
	if id == "" || ts == "" || sigs == "" {
		return ErrMissingHeaders
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	skew := v.now().Unix() - unix
	if math.Abs(float64(skew)) > v.tolerance.Seconds() {
		return ErrTimestampExpired
	}

	expected := v.sign(id, ts, body)
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign returns the "v1,<base64>" signature header value for a delivery.
func (v *Verifier) Sign(id string, at time.Time, body []byte) string {
	mac := v.sign(id, strconv.FormatInt(at.Unix(), 10), body)
	return "v1," + base64.StdEncoding.EncodeToString(mac)
}

func (v *Verifier) sign(id, ts string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return mac.Sum(nil)
}

func firstHeader(h http.Header, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
