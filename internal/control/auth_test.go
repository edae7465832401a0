package control

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestWebsocketAuthTokenEmptySecretDisablesAuth(t *testing.T) {
	if got := websocketAuthToken(""); got != "" {
		t.Fatalf("expected empty token for empty secret, got %q", got)
	}
}

func TestWebsocketAuthTokenSignsAndVerifies(t *testing.T) {
	secret := "super-secret"
	tok := websocketAuthToken(secret)
	if tok == "" {
		t.Fatalf("expected a non-empty signed token")
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token did not verify: %v", err)
	}
	if claims["sub"] != "rtmp-control" {
		t.Fatalf("sub claim = %v, want rtmp-control", claims["sub"])
	}
}

func TestEventTokenCarriesExpectedClaims(t *testing.T) {
	tok, err := eventToken("secret", "", "start", "live", "streamkey", "", "1.2.3.4")
	if err != nil {
		t.Fatalf("eventToken: %v", err)
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return []byte("secret"), nil
	}); err != nil {
		t.Fatalf("token did not verify: %v", err)
	}

	if claims["sub"] != "rtmp_event" {
		t.Fatalf("sub claim = %v, want default rtmp_event", claims["sub"])
	}
	if claims["event"] != "start" {
		t.Fatalf("event claim = %v, want start", claims["event"])
	}
	if claims["channel"] != "live" {
		t.Fatalf("channel claim = %v, want live", claims["channel"])
	}
	if _, hasStreamID := claims["stream_id"]; hasStreamID {
		t.Fatalf("stream_id claim should be absent when streamID is empty")
	}
}

func TestEventTokenIncludesStreamIDWhenPresent(t *testing.T) {
	tok, err := eventToken("secret", "", "stop", "live", "key", "abc123", "1.2.3.4")
	if err != nil {
		t.Fatalf("eventToken: %v", err)
	}
	claims := jwt.MapClaims{}
	jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	if claims["stream_id"] != "abc123" {
		t.Fatalf("stream_id claim = %v, want abc123", claims["stream_id"])
	}
}

func TestEnvOrFallback(t *testing.T) {
	if got := envOr("RTMP_RELAY_NONEXISTENT_VAR", "fallback"); got != "fallback" {
		t.Fatalf("envOr = %q, want fallback", got)
	}
	t.Setenv("RTMP_RELAY_NONEXISTENT_VAR", "set")
	if got := envOr("RTMP_RELAY_NONEXISTENT_VAR", "fallback"); got != "set" {
		t.Fatalf("envOr = %q, want set", got)
	}
}
