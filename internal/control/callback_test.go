package control

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewCallbackNilOnEmptyURL(t *testing.T) {
	if NewCallback("", "secret") != nil {
		t.Fatalf("expected nil Callback for an empty URL")
	}
}

func TestNilCallbackStartStopAreNoOps(t *testing.T) {
	var c *Callback
	streamID, ok := c.Start(1, "1.2.3.4", "live", "key")
	if !ok || streamID != "" {
		t.Fatalf("nil Callback.Start should report ok with no stream id, got (%q, %v)", streamID, ok)
	}
	if !c.Stop(1, "1.2.3.4", "live", "key", "") {
		t.Fatalf("nil Callback.Stop should report ok")
	}
}

func TestCallbackStartPostsSignedHeaderAndReadsStreamID(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("rtmp-event")
		w.Header().Set("stream-id", "ext-42")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewCallback(srv.URL, "secret")
	streamID, ok := c.Start(1, "1.2.3.4", "live", "key")
	if !ok {
		t.Fatalf("expected Start to succeed")
	}
	if streamID != "ext-42" {
		t.Fatalf("streamID = %q, want ext-42", streamID)
	}
	if gotHeader == "" {
		t.Fatalf("expected the rtmp-event header to carry a signed token")
	}
}

func TestCallbackStartFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewCallback(srv.URL, "secret")
	if _, ok := c.Start(1, "1.2.3.4", "live", "key"); ok {
		t.Fatalf("expected Start to fail on a 500 response")
	}
}
