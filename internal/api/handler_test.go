package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Zerr0-C00L/rdfetch/internal/database"
	"github.com/Zerr0-C00L/rdfetch/internal/notify"
	"github.com/Zerr0-C00L/rdfetch/internal/services"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

const testHash = "c9e15763f722f23e98a29decdfae341b98d53056"

type stubClient struct {
	mu      sync.Mutex
	queried [][]string
	deleted []string
	records map[string]debrid.AvailabilityRecord
	infoErr error
}

func (s *stubClient) RequestDeviceCode(ctx context.Context) (*debrid.DeviceCode, error) {
	return &debrid.DeviceCode{DeviceCode: "dev", UserCode: "CODE", VerificationURL: "https://real-debrid.com/device"}, nil
}

func (s *stubClient) PollForCredentials(ctx context.Context, deviceCode string) (*debrid.Credentials, error) {
	return &debrid.Credentials{ClientID: "id", ClientSecret: "secret", AccessToken: "token"}, nil
}

func (s *stubClient) DeleteCredentials(ctx context.Context) error { return nil }

func (s *stubClient) QueryAvailability(ctx context.Context, hashes []string) (map[string]debrid.AvailabilityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queried = append(s.queried, hashes)
	out := map[string]debrid.AvailabilityRecord{}
	for _, h := range hashes {
		if r, ok := s.records[h]; ok {
			out[h] = r
		}
	}
	return out, nil
}

func (s *stubClient) AddMagnet(ctx context.Context, magnetLink string) (string, error) {
	return "RID", nil
}

func (s *stubClient) SelectFiles(ctx context.Context, remoteID string, fileIDs []int) error {
	return nil
}

func (s *stubClient) GetTorrentInfo(ctx context.Context, remoteID string, selectedIndex int) (string, error) {
	if s.infoErr != nil {
		return "", s.infoErr
	}
	return "https://real-debrid.com/d/RID", nil
}

func (s *stubClient) UnrestrictLink(ctx context.Context, hostedLink string) (string, error) {
	return "https://download.example/file.mkv", nil
}

func (s *stubClient) DeleteTorrent(ctx context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, remoteID)
	return nil
}

type testEnv struct {
	server  *httptest.Server
	handler *Handler
	client  *stubClient
	feed    *notify.Feed
	hub     *Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := &stubClient{records: map[string]debrid.AvailabilityRecord{testHash: {Hash: testHash}}}
	feed := notify.NewFeed(20)
	hub := NewHub(logger)
	go hub.Run()
	hub.Follow(feed)

	manager := services.NewDebridManager(services.ManagerConfig{
		Client:  client,
		Store:   database.NewMemoryStore(),
		Sink:    feed,
		Logger:  logger,
		OnEvent: hub.Publish,
	})
	h := NewHandler(context.Background(), manager, nil, feed, hub, logger)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return &testEnv{server: srv, handler: h, client: client, feed: feed, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	var body map[string]interface{}
	if status := env.do(t, http.MethodGet, "/health", nil, &body); status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if body["status"] != "ok" || body["enabled"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCheckAvailabilityDerivesHashFromMagnet(t *testing.T) {
	env := newTestEnv(t)
	req := map[string]interface{}{
		"results": []map[string]string{
			{"title": "cached", "magnetLink": "magnet:?xt=urn:btih:" + strings.ToUpper(testHash)},
			{"title": "other", "magnetHash": "ffff"},
		},
	}
	var resp availabilityResponse
	if status := env.do(t, http.MethodPost, "/api/v1/availability", req, &resp); status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if len(resp.Results) != 2 || resp.Results[0].Status != "full" || resp.Results[1].Status != "none" {
		t.Fatalf("unexpected statuses %+v", resp.Results)
	}
	if resp.Cached != 1 {
		t.Fatalf("expected 1 cached record, got %d", resp.Cached)
	}

	var rec recordResponse
	if status := env.do(t, http.MethodGet, "/api/v1/availability/"+strings.ToUpper(testHash), nil, &rec); status != http.StatusOK {
		t.Fatalf("status %d", status)
	}
	if rec.Status != "full" || rec.Record == nil {
		t.Fatalf("unexpected record %+v", rec)
	}
	if status := env.do(t, http.MethodGet, "/api/v1/availability/ffff", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestSelectUnknownResult(t *testing.T) {
	env := newTestEnv(t)
	var errBody errorEnvelope
	status := env.do(t, http.MethodPost, "/api/v1/select", map[string]interface{}{
		"result": map[string]string{"title": "x", "magnetHash": "abcd"},
	}, &errBody)
	if status != http.StatusNotFound || errBody.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %d %+v", status, errBody)
	}
	notes := env.feed.Recent(0)
	if len(notes) != 1 || !strings.Contains(notes[0].Message, "abcd") {
		t.Fatalf("expected a not-found notification, got %+v", notes)
	}
}

func TestResolveLifecycle(t *testing.T) {
	env := newTestEnv(t)

	var started struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	status := env.do(t, http.MethodPost, "/api/v1/resolve", map[string]interface{}{
		"result": map[string]string{"title": "movie", "magnetLink": "magnet:?xt=urn:btih:" + testHash},
	}, &started)
	if status != http.StatusAccepted || started.ID == "" {
		t.Fatalf("unexpected start %d %+v", status, started)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.handler.manager.Resolver.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var resp struct {
		InProgress bool `json:"inProgress"`
		Task       struct {
			ID    string `json:"id"`
			State string `json:"state"`
			URL   string `json:"url"`
		} `json:"task"`
	}
	env.do(t, http.MethodGet, "/api/v1/resolve", nil, &resp)
	if resp.InProgress || resp.Task.ID != started.ID || resp.Task.State != "ready" || resp.Task.URL == "" {
		t.Fatalf("unexpected status %+v", resp)
	}

	var notes struct {
		Notifications []notify.Notification `json:"notifications"`
	}
	env.do(t, http.MethodGet, "/api/v1/notifications?limit=5", nil, &notes)
	if len(notes.Notifications) != 1 || notes.Notifications[0].Message != "Download ready" {
		t.Fatalf("unexpected notifications %+v", notes.Notifications)
	}

	if status := env.do(t, http.MethodDelete, "/api/v1/resolve", nil, nil); status != http.StatusNoContent {
		t.Fatalf("cancel while idle should succeed, got %d", status)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	var started map[string]string
	if status := env.do(t, http.MethodPost, "/api/v1/auth", nil, &started); status != http.StatusAccepted || started["attemptId"] == "" {
		t.Fatalf("unexpected start %d %v", status, started)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.handler.manager.Auth.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	var session map[string]interface{}
	env.do(t, http.MethodGet, "/api/v1/auth", nil, &session)
	if session["state"] != "authenticated" || session["enabled"] != true {
		t.Fatalf("unexpected session %v", session)
	}

	env.do(t, http.MethodPost, "/api/v1/logout", nil, &session)
	if session["state"] != "unauthenticated" || session["enabled"] != false {
		t.Fatalf("unexpected session after logout %v", session)
	}
}

func TestNotificationsRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t)
	if status := env.do(t, http.MethodGet, "/api/v1/notifications?limit=-1", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
}

func TestWebSocketReceivesNotifications(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	env.feed.Report("hello", notify.SeverityInfo)

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read ws message: %v", err)
		}
		var msg struct {
			Type string              `json:"type"`
			Data notify.Notification `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode ws message: %v", err)
		}
		if msg.Type == "notification" {
			if msg.Data.Message != "hello" {
				t.Fatalf("unexpected notification %+v", msg.Data)
			}
			return
		}
	}
}
