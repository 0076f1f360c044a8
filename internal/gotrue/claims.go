package gotrue

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Access token claims issued by GoTrue
type Claims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

type ClaimsParser struct {
	secret []byte
	parser *jwt.Parser
}

// Parser verifies HS256 signature when secret is set
// Without secret token is only decoded: the auth API stays the one that checks it
func NewClaimsParser(secret string) *ClaimsParser {
	return &ClaimsParser{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (p *ClaimsParser) Parse(token string) (Claims, error) {
	claims := Claims{}

	if len(p.secret) == 0 {
		_, _, err := p.parser.ParseUnverified(token, &claims)
		if err != nil {
			return claims, fmt.Errorf("error decoding token. Err: %w", err)
		}
		return claims, nil
	}

	parsed, err := p.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) { return p.secret, nil })
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("error parsing token. Err: %w", err)
	}

	return claims, nil
}
