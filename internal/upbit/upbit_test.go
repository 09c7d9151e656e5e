package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coinbot-kr/coinbot/internal/metrics"
)

func TestAuthTokenClaims(t *testing.T) {
	values := url.Values{}
	values.Set("market", "KRW-BTC")
	values.Set("side", "bid")
	query := encodeQuery(values)

	signed, err := authToken("access", "secret", query)
	if err != nil {
		t.Fatalf("authToken() error = %v", err)
	}

	token, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return []byte("secret"), nil
	})
	if err != nil {
		t.Fatalf("parsing token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		t.Fatal("token is not valid")
	}

	if claims["access_key"] != "access" {
		t.Errorf("access_key = %v, want access", claims["access_key"])
	}
	if claims["nonce"] == "" || claims["nonce"] == nil {
		t.Error("nonce is empty")
	}

	wantHash := sha512.Sum512([]byte(query))
	if claims["query_hash"] != hex.EncodeToString(wantHash[:]) {
		t.Errorf("query_hash mismatch for query %q", query)
	}
	if claims["query_hash_alg"] != "SHA512" {
		t.Errorf("query_hash_alg = %v, want SHA512", claims["query_hash_alg"])
	}
}

func TestAuthTokenWithoutQuery(t *testing.T) {
	signed, err := authToken("access", "secret", "")
	if err != nil {
		t.Fatalf("authToken() error = %v", err)
	}

	token, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return []byte("secret"), nil
	})
	if err != nil {
		t.Fatalf("parsing token: %v", err)
	}
	claims := token.Claims.(jwt.MapClaims)
	if _, ok := claims["query_hash"]; ok {
		t.Error("query_hash present for empty query")
	}
}

func TestEncodeQuerySortsKeys(t *testing.T) {
	values := url.Values{}
	values.Set("side", "bid")
	values.Set("market", "KRW-BTC")
	values.Set("ord_type", "price")

	got := encodeQuery(values)
	if !strings.HasPrefix(got, "market=") {
		t.Errorf("encodeQuery() = %q, want keys sorted with market first", got)
	}
}

func TestPrivateEndpointsRequireKeys(t *testing.T) {
	c := NewClient("", "")
	ctx := context.Background()

	if c.HasKeys() {
		t.Fatal("HasKeys() = true for empty keys")
	}
	if _, err := c.GetBalances(ctx); err == nil {
		t.Error("GetBalances() succeeded without keys")
	}
	if _, err := c.BuyMarketOrder(ctx, "KRW-BTC", 10000); err == nil {
		t.Error("BuyMarketOrder() succeeded without keys")
	}
}

func TestCountRequestOutcomes(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.ExchangeRequests.WithLabelValues("candles", "ok"))
	errBefore := testutil.ToFloat64(metrics.ExchangeRequests.WithLabelValues("candles", "error"))

	countRequest("candles", nil)
	countRequest("candles", errors.New("status 429"))

	if got := testutil.ToFloat64(metrics.ExchangeRequests.WithLabelValues("candles", "ok")); got != okBefore+1 {
		t.Errorf("ok counter = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(metrics.ExchangeRequests.WithLabelValues("candles", "error")); got != errBefore+1 {
		t.Errorf("error counter = %v, want %v", got, errBefore+1)
	}
}
