package wireless

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRServer_ConnectsBackToCaller(t *testing.T) {
	r := &scriptedRunner{replies: map[string][]reply{
		"connect 192.0.2.1:5555": {{out: "connected to 192.0.2.1:5555"}},
	}}
	sess, sink := &fakeSession{}, &logSink{}
	h := NewQRServer(r, sess, sink, zerolog.Nop()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/c", nil)
	req.Header.Set("X-Forwarded-For", "10.9.9.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Connected")
	assert.Equal(t, []string{"192.0.2.1:5555"}, sess.targets)
	assert.True(t, sink.contains("192.0.2.1"))
	assert.Equal(t, []string{"disconnect 192.0.2.1:5555", "connect 192.0.2.1:5555"}, r.calls)
}

func TestQRServer_ConnectFailure(t *testing.T) {
	r := &scriptedRunner{replies: map[string][]reply{
		"connect 192.0.2.1:5555": {{out: "failed to connect to '192.0.2.1:5555': Connection refused"}},
	}}
	sess := &fakeSession{}
	h := NewQRServer(r, sess, nil, zerolog.Nop()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/c", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Connection refused")
	assert.Empty(t, sess.targets)
}

func TestQRServer_RateLimited(t *testing.T) {
	r := &scriptedRunner{replies: map[string][]reply{
		"connect 192.0.2.1:5555": {{out: "connected to 192.0.2.1:5555"}},
	}}
	h := NewQRServer(r, &fakeSession{}, nil, zerolog.Nop()).Handler()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/c", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/c", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, 1, r.count("connect 192.0.2.1:5555"))
}

func TestQRServer_Healthz(t *testing.T) {
	h := NewQRServer(&scriptedRunner{}, &fakeSession{}, nil, zerolog.Nop()).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
