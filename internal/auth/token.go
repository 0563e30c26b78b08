package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/freightdesk/internal/shared"
)

var signingMethod = jwt.SigningMethodHS256

// Config carries the shared secret of the staff identity issuer.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Claims are the staff claims carried by an access token. The subject holds the
// numeric staff id.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Actor converts the claims to the actor recorded in document history.
func (c *Claims) Actor() (shared.Actor, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return shared.Actor{}, fmt.Errorf("invalid subject %q", c.Subject)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "staff-" + c.Subject
	}
	return shared.StaffActor(id, name), nil
}

// Mint issues a signed token for a staff member.
func Mint(cfg Config, now time.Time, staffID int64, name string) (string, error) {
	if cfg.Secret == "" {
		return "", errors.New("jwt secret is required")
	}
	if staffID <= 0 {
		return "", errors.New("staff id must be positive")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(staffID, 10),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns its claims.
func Parse(cfg Config, raw string) (*Claims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{signingMethod.Alg()}), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != signingMethod {
			return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
