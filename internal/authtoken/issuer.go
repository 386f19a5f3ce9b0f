package authtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const DefaultTTL = 15 * time.Minute

// Issuer はHS256のアクセストークンを発行する（devエンドポイントとテスト用）。
// 本番の発行元は外部のIdP。
type Issuer struct {
	secret    []byte
	accessTTL time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), accessTTL: ttl}
}

func (i *Issuer) Issue(subject string, now time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("subject is required")
	}
	expiresAt := now.Add(i.accessTTL)

	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}
