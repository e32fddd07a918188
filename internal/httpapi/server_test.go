// ABOUTME: Tests for the read-only HTTP surface
// ABOUTME: SSE stream verified end to end against a live httptest server

package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coevo/coevo-node/internal/bus"
	"github.com/coevo/coevo-node/internal/signer"
)

func setupServer(t *testing.T) (*Server, *bus.Broker) {
	t.Helper()

	sg, err := signer.LoadOrCreate(filepath.Join(t.TempDir(), "node.pem"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := bus.New(logger)
	t.Cleanup(broker.Close)

	return New("127.0.0.1:0", broker, sg, logger), broker
}

func TestHealth(t *testing.T) {
	srv, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestNodeIdentity(t *testing.T) {
	srv, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/node", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body["public_key_pem"], "-----BEGIN PUBLIC KEY-----"))
	assert.True(t, strings.HasPrefix(body["fingerprint"], "SHA256:"))
}

func TestEvents_StreamsKeepaliveThenEvents(t *testing.T) {
	srv, broker := setupServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readFrame := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
	}

	// First frame is always the keepalive
	assert.JSONEq(t, `{"type":"keepalive"}`, readFrame())

	require.NoError(t, broker.Publish(bus.VoteProposed{Type: bus.TypeVoteProposed, ProposalID: "p1"}))

	var ev bus.VoteProposed
	require.NoError(t, json.Unmarshal([]byte(readFrame()), &ev))
	assert.Equal(t, "p1", ev.ProposalID)
}

func TestEvents_DisconnectReleasesSubscription(t *testing.T) {
	srv, broker := setupServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	cancel()

	// Publishing after the disconnect must not block or panic even though
	// the handler goroutine is tearing down.
	require.Eventually(t, func() bool {
		return broker.Publish(bus.VoteProposed{Type: bus.TypeVoteProposed, ProposalID: "p2"}) == nil
	}, 2*time.Second, 50*time.Millisecond)
}
