package control

import "testing"

type fakeKiller struct {
	killedPublisherApp               string
	killedStreamApp, killedStreamID  string
}

func (k *fakeKiller) KillPublisher(app string) bool {
	k.killedPublisherApp = app
	return true
}

func (k *fakeKiller) KillPublisherWithStreamPath(app, streamPath string) bool {
	k.killedStreamApp, k.killedStreamID = app, streamPath
	return true
}

func TestDispatchRedisCommandKillSession(t *testing.T) {
	k := &fakeKiller{}
	dispatchRedisCommand(k, "kill-session>live")
	if k.killedPublisherApp != "live" {
		t.Fatalf("killedPublisherApp = %q, want live", k.killedPublisherApp)
	}
}

func TestDispatchRedisCommandCloseStream(t *testing.T) {
	k := &fakeKiller{}
	dispatchRedisCommand(k, "close-stream>live|ext-123")
	if k.killedStreamApp != "live" || k.killedStreamID != "ext-123" {
		t.Fatalf("got app=%q streamID=%q, want live/ext-123", k.killedStreamApp, k.killedStreamID)
	}
}

func TestDispatchRedisCommandMalformedIsIgnored(t *testing.T) {
	k := &fakeKiller{}
	dispatchRedisCommand(k, "not-a-valid-command")
	if k.killedPublisherApp != "" || k.killedStreamApp != "" {
		t.Fatalf("malformed command should not dispatch any kill")
	}
}

func TestDispatchRedisCommandUnknownNameIsIgnored(t *testing.T) {
	k := &fakeKiller{}
	dispatchRedisCommand(k, "reload-config>live")
	if k.killedPublisherApp != "" || k.killedStreamApp != "" {
		t.Fatalf("unknown command name should not dispatch any kill")
	}
}

func TestDispatchRedisCommandCloseStreamMissingSecondArgIsIgnored(t *testing.T) {
	k := &fakeKiller{}
	dispatchRedisCommand(k, "close-stream>live")
	if k.killedStreamApp != "" {
		t.Fatalf("close-stream with only one arg should not dispatch")
	}
}
