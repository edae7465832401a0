package control

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
)

// tokenExpirySeconds bounds how long a signed callback/control token is
// valid, matching the teacher's JWT_EXPIRATION_TIME_SECONDS.
const tokenExpirySeconds = 120

// websocketAuthToken signs a short-lived token the control connection
// presents to the coordinator on dial, grounded in control_auth.go's
// MakeWebsocketAuthenticationToken. An empty secret disables auth,
// matching the teacher's "stand-alone mode" fallback.
func websocketAuthToken(secret string) string {
	if secret == "" {
		return ""
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rtmp-control",
		"exp": time.Now().Add(tokenExpirySeconds * time.Second).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		logger.Error(err)
		return ""
	}
	return signed
}

// eventToken signs the per-event claims the HTTP start/stop callback
// sends in the rtmp-event header, grounded in rtmp_callback.go.
func eventToken(secret, subject, event, app, key, streamID, clientIP string) (string, error) {
	if subject == "" {
		subject = "rtmp_event"
	}
	claims := jwt.MapClaims{
		"sub":       subject,
		"event":     event,
		"channel":   app,
		"key":       key,
		"client_ip": clientIP,
		"exp":       time.Now().Add(tokenExpirySeconds * time.Second).Unix(),
	}
	if streamID != "" {
		claims["stream_id"] = streamID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
