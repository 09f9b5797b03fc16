package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken signals a token that failed parsing, signature or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Service verifies bearer tokens issued by the back-office identity provider.
type Service struct {
	jwtSecret []byte
}

func NewService(jwtSecret string) *Service {
	return &Service{jwtSecret: []byte(jwtSecret)}
}

// VerifyToken validates a JWT and returns the caller principal.
func (s *Service) VerifyToken(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Principal{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Principal{}, fmt.Errorf("%w: missing role claim", ErrInvalidToken)
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleStr)
	}

	return Principal{UserID: userID, Role: role}, nil
}

// IssueToken mints a token for the given principal. Used by operational
// tooling and tests; production tokens come from the identity provider.
func (s *Service) IssueToken(p Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": p.UserID,
		"role":    string(p.Role),
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleAgent, RoleBackOffice, RoleFinance:
		return true
	default:
		return false
	}
}
