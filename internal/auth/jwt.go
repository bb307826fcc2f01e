package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chatbot"

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// CustomClaims are the registered claims plus the account the token was
// issued to.
type CustomClaims struct {
	Account int64 `json:"account"`
	jwt.RegisteredClaims
}

// NewAccessToken signs an HS256 access token for account.
func NewAccessToken(account int64, jwtSecret string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Account: account,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(account, 10),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("sign token for account %d: %w", account, err)
	}
	return signed, nil
}

// ParseAccessToken validates a token and returns its claims. Expired and
// malformed tokens keep the jwt sentinel in the error chain.
func ParseAccessToken(tokenString, jwtSecret string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Account <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
