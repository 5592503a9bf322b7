// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL of zero means tokens never expire.
	tokenTTL time.Duration
)

// Init generates a runtime ed25519 key pair and reads TOKEN_EXPIRE_TIME.
// Tokens signed before a restart do not survive it; sessions are cheap to
// re-establish.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return parseTokenTTL()
}

// InitFromPath loads raw ed25519 keys from disk for deployments that need
// tokens to survive restarts.
func InitFromPath(privatePath, publicPath string) error {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	privateKey = ed25519.PrivateKey(priv)
	publicKey = ed25519.PublicKey(pub)
	return parseTokenTTL()
}

func parseTokenTTL() error {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	if raw == "" || raw == "0" || raw == "never" {
		tokenTTL = 0
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
	}
	tokenTTL = d
	return nil
}

// CreateJWT signs a token carrying the user id as "sub".
func CreateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{"sub": userID}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a token and returns its "sub" claim.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
