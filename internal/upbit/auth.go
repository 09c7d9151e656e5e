package upbit

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// authToken builds the Upbit JWT for a private request. When query is
// non-empty its SHA512 hash is embedded as query_hash.
func authToken(accessKey, secretKey, query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": accessKey,
		"nonce":      uuid.NewString(),
	}
	if query != "" {
		hash := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(hash[:])
		claims["query_hash_alg"] = "SHA512"
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("signing auth token: %w", err)
	}
	return signed, nil
}

// encodeQuery renders url.Values the way Upbit hashes them, keys sorted.
func encodeQuery(values url.Values) string {
	return values.Encode()
}
