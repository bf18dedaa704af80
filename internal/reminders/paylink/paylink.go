// Package paylink issues and verifies the signed payment links embedded in reminder emails.
package paylink

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenType = "pay_link"
	audience  = "invoice-payment"
)

var ErrInvalidLink = errors.New("invalid payment link")

// Claims identify the invoice a payment link was issued for.
type Claims struct {
	InvoiceID uuid.UUID
	Level     int
	ExpiresAt time.Time
}

// Signer issues HS256 tokens and builds {baseURL}/pay/{token} links.
type Signer struct {
	secret  []byte
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewSigner returns a signer. ttl <= 0 defaults to 30 days.
func NewSigner(secret, baseURL string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), baseURL: baseURL, ttl: ttl, now: time.Now}
}

// Link returns the signed payment URL for the invoice at the given reminder level.
func (s *Signer) Link(invoiceID uuid.UUID, level int) (string, error) {
	token, err := s.Token(invoiceID, level)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/pay/" + token, nil
}

// Token signs the invoice id and reminder level.
func (s *Signer) Token(invoiceID uuid.UUID, level int) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("pay link secret not configured")
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   invoiceID.String(),
		"aud":   audience,
		"type":  tokenType,
		"level": level,
		"iat":   now.Unix(),
		"exp":   now.Add(s.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign pay link: %w", err)
	}
	return signed, nil
}

// Verify parses a token issued by Token.
func (s *Signer) Verify(raw string) (Claims, error) {
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithAudience(audience), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidLink
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidLink
	}
	if t, _ := mapClaims["type"].(string); t != tokenType {
		return Claims{}, ErrInvalidLink
	}
	sub, _ := mapClaims["sub"].(string)
	invoiceID, err := uuid.Parse(sub)
	if err != nil {
		return Claims{}, ErrInvalidLink
	}
	level, _ := mapClaims["level"].(float64)
	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return Claims{}, ErrInvalidLink
	}

	return Claims{InvoiceID: invoiceID, Level: int(level), ExpiresAt: exp.Time}, nil
}
