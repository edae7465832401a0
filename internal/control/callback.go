package control

import (
	"fmt"
	"net/http"

	"github.com/nodewire-systems/rtmp-relay/internal/logger"
)

// Callback posts signed publish-start/publish-stop notifications to an
// external HTTP endpoint, grounded in rtmp_callback.go's SendStartCallback
// / SendStopCallback. It is the fallback notification path: the server
// calls Start when no WebSocket coordinator (Connection) granted the
// publish, and calls Stop on every publish end.
type Callback struct {
	url    string
	secret string
	client *http.Client
}

// NewCallback returns nil if url is empty, matching the teacher's "no
// callback configured" short-circuit.
func NewCallback(url, secret string) *Callback {
	if url == "" {
		return nil
	}
	return &Callback{url: url, secret: secret, client: &http.Client{}}
}

// Start posts the publish-start event and returns the stream id the
// remote endpoint assigned via the stream-id response header, if any.
func (c *Callback) Start(sessionID uint64, ip, app, key string) (streamID string, ok bool) {
	if c == nil {
		return "", true
	}
	token, err := eventToken(c.secret, envOr("CUSTOM_JWT_SUBJECT", ""), "start", app, key, "", ip)
	if err != nil {
		logger.Error(err)
		return "", false
	}
	res, err := c.post(token)
	if err != nil {
		logger.Error(err)
		return "", false
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		logger.DebugSession(sessionID, ip, "callback ended with status "+fmt.Sprint(res.StatusCode))
		return "", false
	}
	return res.Header.Get("stream-id"), true
}

// Stop posts the publish-stop event.
func (c *Callback) Stop(sessionID uint64, ip, app, key, streamID string) bool {
	if c == nil {
		return true
	}
	token, err := eventToken(c.secret, envOr("CUSTOM_JWT_SUBJECT", ""), "stop", app, key, streamID, ip)
	if err != nil {
		logger.Error(err)
		return false
	}
	res, err := c.post(token)
	if err != nil {
		logger.Error(err)
		return false
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		logger.DebugSession(sessionID, ip, "callback ended with status "+fmt.Sprint(res.StatusCode))
		return false
	}
	return true
}

func (c *Callback) post(token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("rtmp-event", token)
	return c.client.Do(req)
}
