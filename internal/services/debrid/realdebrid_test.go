package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

type memoryTokens struct {
	mu    sync.Mutex
	creds *Credentials
	saves int
}

func (m *memoryTokens) LoadCredentials(context.Context) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return nil, nil
	}
	copied := *m.creds
	return &copied, nil
}

func (m *memoryTokens) SaveCredentials(_ context.Context, creds *Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *creds
	m.creds = &copied
	m.saves++
	return nil
}

func (m *memoryTokens) ClearCredentials(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	hashC = "cccccccccccccccccccccccccccccccccccccccc"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, router *mux.Router, tokens TokenStore, opts ...Option) *RealDebrid {
	t.Helper()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	base := []Option{
		WithHTTPClient(server.Client()),
		WithBaseURL(server.URL + "/rest"),
		WithAuthURL(server.URL + "/oauth"),
		WithRetry(3, time.Millisecond),
	}
	return NewRealDebrid(tokens, quietLogger(), append(base, opts...)...)
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func TestQueryAvailabilityBuildsRecords(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/instantAvailability/{hashes:.*}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer static-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		hashes := strings.Split(mux.Vars(r)["hashes"], "/")
		if len(hashes) != 3 {
			t.Errorf("expected 3 hashes in path, got %v", hashes)
		}
		_, _ = io.WriteString(w, `{
			"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": {"rd": [{"1": {"filename": "movie.mkv", "filesize": 100}}]},
			"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb": {"rd": [
				{"7": {"filename": "e02.mkv", "filesize": 2}, "3": {"filename": "e01.mkv", "filesize": 1}},
				{"9": {"filename": "extras.mkv", "filesize": 3}}
			]},
			"cccccccccccccccccccccccccccccccccccccccc": []
		}`)
	}).Methods(http.MethodGet)

	rd := newTestClient(t, router, nil, WithAPIKey("static-key"))
	records, err := rd.QueryAvailability(context.Background(), []string{hashA, hashB, hashC})
	if err != nil {
		t.Fatalf("query availability: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(records), records)
	}
	full, ok := records[hashA]
	if !ok {
		t.Fatalf("expected lower-cased key %s, got %+v", hashA, records)
	}
	if len(full.Batches) != 0 || len(full.Files) != 0 {
		t.Fatalf("single-file torrent should have no batches: %+v", full)
	}

	partial := records[hashB]
	if len(partial.Batches) != 2 {
		t.Fatalf("expected 2 batches, got %+v", partial.Batches)
	}
	if ids := partial.Batches[0].FileIDs(); len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Fatalf("batch files should be ordered by id, got %v", ids)
	}
	if len(partial.Files) != 3 {
		t.Fatalf("expected 3 flattened files, got %+v", partial.Files)
	}
	last := partial.Files[2]
	if last.Name != "extras.mkv" || last.BatchIndex != 1 || last.BatchFileIndex != 0 {
		t.Fatalf("unexpected file choice %+v", last)
	}
}

func TestQueryAvailabilitySplitsLargeRequests(t *testing.T) {
	var calls atomic.Int32
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/instantAvailability/{hashes:.*}", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{}`)
	})

	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	hashes := make([]string, 150)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("%040x", i)
	}
	if _, err := rd.QueryAvailability(context.Background(), hashes); err != nil {
		t.Fatalf("query availability: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 batched calls, got %d", calls.Load())
	}
}

func TestQueryAvailabilityDropsMalformedHashes(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	seen := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), paths...)
	}
	router := mux.NewRouter()
	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.RawPath+"|"+r.URL.Path+"?"+r.URL.RawQuery)
		mu.Unlock()
		_, _ = io.WriteString(w, `{}`)
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))

	_, err := rd.QueryAvailability(context.Background(), []string{"../../disable_access_token?x=", "a#b", " " + strings.ToUpper(hashA) + " "})
	if err != nil {
		t.Fatalf("query availability: %v", err)
	}
	got := seen()
	if len(got) != 1 {
		t.Fatalf("expected one request, got %v", got)
	}
	if want := "|/rest/torrents/instantAvailability/" + hashA + "?"; got[0] != want {
		t.Fatalf("request target = %q, want %q", got[0], want)
	}

	records, err := rd.QueryAvailability(context.Background(), []string{"../x", "zz"})
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty result, got %v %v", records, err)
	}
	if got := seen(); len(got) != 1 {
		t.Fatalf("only malformed hashes must not reach the server, got %v", got)
	}
}

func TestQueryAvailabilityEmptySkipsRequest(t *testing.T) {
	router := mux.NewRouter()
	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	records, err := rd.QueryAvailability(context.Background(), nil)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected empty result, got %v %v", records, err)
	}
}

func TestTorrentLifecycle(t *testing.T) {
	var deleted atomic.Int32
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/addMagnet", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("magnet"); got != "magnet:?xt=urn:btih:abc" {
			t.Errorf("unexpected magnet %q", got)
		}
		writeJSON(t, w, http.StatusCreated, map[string]string{"id": "T1", "uri": "https://x/T1"})
	}).Methods(http.MethodPost)
	router.HandleFunc("/rest/torrents/selectFiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if got := r.PostForm.Get("files"); got != "3,7" {
			t.Errorf("unexpected files %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)
	router.HandleFunc("/rest/torrents/info/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":     mux.Vars(r)["id"],
			"status": "downloaded",
			"links":  []string{"https://rd/l0", "https://rd/l1"},
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/rest/unrestrict/link", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if got := r.PostForm.Get("link"); got != "https://rd/l1" {
			t.Errorf("unexpected link %q", got)
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"link": "https://rd/l1", "download": "https://cdn/file.mkv"})
	}).Methods(http.MethodPost)
	router.HandleFunc("/rest/torrents/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
		deleted.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	ctx := context.Background()

	id, err := rd.AddMagnet(ctx, "magnet:?xt=urn:btih:abc")
	if err != nil || id != "T1" {
		t.Fatalf("add magnet: %q %v", id, err)
	}
	if err := rd.SelectFiles(ctx, id, []int{3, 7}); err != nil {
		t.Fatalf("select files: %v", err)
	}
	link, err := rd.GetTorrentInfo(ctx, id, 1)
	if err != nil || link != "https://rd/l1" {
		t.Fatalf("torrent info: %q %v", link, err)
	}
	if _, err := rd.GetTorrentInfo(ctx, id, 5); err == nil {
		t.Fatal("expected error for missing link index")
	}
	download, err := rd.UnrestrictLink(ctx, link)
	if err != nil || download != "https://cdn/file.mkv" {
		t.Fatalf("unrestrict: %q %v", download, err)
	}
	if err := rd.DeleteTorrent(ctx, id); err != nil {
		t.Fatalf("delete torrent: %v", err)
	}
	if deleted.Load() != 1 {
		t.Fatalf("expected one delete, got %d", deleted.Load())
	}
}

func TestSelectFilesAllWhenEmpty(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/selectFiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if got := r.PostForm.Get("files"); got != "all" {
			t.Errorf("expected files=all, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	if err := rd.SelectFiles(context.Background(), "T1", nil); err != nil {
		t.Fatalf("select files: %v", err)
	}
}

func TestTorrentInfoNotCached(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/info/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"status": "magnet_conversion", "links": []string{}})
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	_, err := rd.GetTorrentInfo(context.Background(), "T1", 0)
	var remote *RemoteError
	if !errors.As(err, &remote) || !strings.Contains(remote.Message, "not cached") {
		t.Fatalf("expected not cached remote error, got %v", err)
	}
}

func TestAPIErrorDecoded(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/addMagnet", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": "infringing_file", "error_code": 35})
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	_, err := rd.AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if remote.StatusCode != http.StatusBadRequest || remote.Code != 35 || remote.Message != "infringing_file" {
		t.Fatalf("unexpected remote error %+v", remote)
	}
}

func TestMakeRequestRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	if err := rd.DeleteTorrent(context.Background(), "T1"); err != nil {
		t.Fatalf("delete torrent: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a retry, got %d calls", calls.Load())
	}
}

func dropConnection(t *testing.T, w http.ResponseWriter) {
	t.Helper()
	hj, ok := w.(http.Hijacker)
	if !ok {
		t.Fatal("response writer cannot hijack")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		t.Fatalf("hijack: %v", err)
	}
	conn.Close()
}

func TestTransportErrorsRetryOnlyIdempotentRequests(t *testing.T) {
	var adds, deletes atomic.Int32
	router := mux.NewRouter()
	router.HandleFunc("/rest/torrents/addMagnet", func(w http.ResponseWriter, r *http.Request) {
		adds.Add(1)
		dropConnection(t, w)
	})
	router.HandleFunc("/rest/torrents/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
		if deletes.Add(1) == 1 {
			dropConnection(t, w)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))

	if _, err := rd.AddMagnet(context.Background(), "magnet:?xt=urn:btih:"+hashA); err == nil {
		t.Fatal("expected add magnet to fail")
	}
	if got := adds.Load(); got != 1 {
		t.Fatalf("add magnet sent %d times, want 1", got)
	}

	if err := rd.DeleteTorrent(context.Background(), "T1"); err != nil {
		t.Fatalf("delete torrent: %v", err)
	}
	if got := deletes.Load(); got != 2 {
		t.Fatalf("delete torrent sent %d times, want 2", got)
	}
}

func TestCancelledRequestReportsErrCancelled(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	router := mux.NewRouter()
	router.HandleFunc("/rest/unrestrict/link", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		close(entered)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	rd := newTestClient(t, router, nil, WithAPIKey("k"))
	// runs before server.Close so the handler cannot hold the server open
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := rd.UnrestrictLink(ctx, "https://rd/l0")
		errCh <- err
	}()
	<-entered
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request did not unwind after cancellation")
	}
}

func deviceRouter(t *testing.T, credentials http.HandlerFunc) (*mux.Router, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	router := mux.NewRouter()
	router.HandleFunc("/oauth/device/code", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("client_id") != openSourceClientID || r.URL.Query().Get("new_credentials") != "yes" {
			t.Errorf("unexpected device code query %s", r.URL.RawQuery)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"device_code":             "D1",
			"user_code":               "ABCD",
			"interval":                5,
			"expires_in":              600,
			"verification_url":        "https://x/device",
			"direct_verification_url": "https://x/verify",
		})
	}).Methods(http.MethodGet)
	router.HandleFunc("/oauth/device/credentials", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		if r.URL.Query().Get("code") != "D1" {
			t.Errorf("unexpected device code %q", r.URL.Query().Get("code"))
		}
		credentials(w, r)
	}).Methods(http.MethodGet)
	router.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "http://oauth.net/grant_type/device/1.0" {
			t.Errorf("unexpected grant type %q", r.PostForm.Get("grant_type"))
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"access_token":  "access-" + r.PostForm.Get("code"),
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
	}).Methods(http.MethodPost)
	return router, &polls
}

func TestDeviceFlowGrantedAfterPendingPolls(t *testing.T) {
	var attempt atomic.Int32
	router, polls := deviceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) <= 2 {
			writeJSON(t, w, http.StatusForbidden, map[string]any{"error": "authorization_pending", "error_code": 9})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]string{"client_id": "CID", "client_secret": "SECRET"})
	})
	rd := newTestClient(t, router, &memoryTokens{}, WithPollInterval(5*time.Millisecond))
	ctx := context.Background()

	code, err := rd.RequestDeviceCode(ctx)
	if err != nil {
		t.Fatalf("request device code: %v", err)
	}
	if code.PresentationURL() != "https://x/verify" || code.UserCode != "ABCD" {
		t.Fatalf("unexpected device code %+v", code)
	}

	creds, err := rd.PollForCredentials(ctx, code.DeviceCode)
	if err != nil {
		t.Fatalf("poll credentials: %v", err)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls, got %d", polls.Load())
	}
	if creds.ClientID != "CID" || creds.ClientSecret != "SECRET" || creds.AccessToken != "access-D1" || creds.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
	if creds.ExpiresAt.IsZero() {
		t.Fatal("expected expiry to be set")
	}
}

func TestDeviceFlowDenied(t *testing.T) {
	router, _ := deviceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{"error": "access_denied"})
	})
	rd := newTestClient(t, router, &memoryTokens{}, WithPollInterval(time.Millisecond))
	code, err := rd.RequestDeviceCode(context.Background())
	if err != nil {
		t.Fatalf("request device code: %v", err)
	}
	_, err = rd.PollForCredentials(context.Background(), code.DeviceCode)
	if !errors.Is(err, ErrAuthorizationDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
}

func TestDeviceFlowExpires(t *testing.T) {
	router, _ := deviceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{"error": "authorization_pending"})
	})
	rd := newTestClient(t, router, &memoryTokens{}, WithPollInterval(time.Millisecond))
	clock := time.Now()
	rd.now = func() time.Time {
		clock = clock.Add(5 * time.Minute)
		return clock
	}

	code, err := rd.RequestDeviceCode(context.Background())
	if err != nil {
		t.Fatalf("request device code: %v", err)
	}
	_, err = rd.PollForCredentials(context.Background(), code.DeviceCode)
	if !errors.Is(err, ErrAuthorizationExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestDeviceFlowCancelled(t *testing.T) {
	router, _ := deviceRouter(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, map[string]any{"error": "authorization_pending"})
	})
	rd := newTestClient(t, router, &memoryTokens{}, WithPollInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := rd.PollForCredentials(ctx, "D1")
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	tokens := &memoryTokens{creds: &Credentials{
		ClientID:     "CID",
		ClientSecret: "SECRET",
		AccessToken:  "old",
		RefreshToken: "R1",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}}

	router := mux.NewRouter()
	router.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "R1" || r.PostForm.Get("client_secret") != "SECRET" {
			t.Errorf("unexpected refresh form %v", r.PostForm)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"access_token": "new", "refresh_token": "R2", "expires_in": 3600})
	})
	router.HandleFunc("/rest/torrents/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer new" {
			t.Errorf("expected refreshed token, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	rd := newTestClient(t, router, tokens)
	if err := rd.DeleteTorrent(context.Background(), "T1"); err != nil {
		t.Fatalf("delete torrent: %v", err)
	}
	if tokens.creds.AccessToken != "new" || tokens.creds.RefreshToken != "R2" {
		t.Fatalf("refreshed credentials not saved: %+v", tokens.creds)
	}
}

func TestRequestWithoutCredentials(t *testing.T) {
	rd := newTestClient(t, mux.NewRouter(), &memoryTokens{})
	_, err := rd.AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestDeleteCredentials(t *testing.T) {
	t.Run("nothing stored", func(t *testing.T) {
		router := mux.NewRouter()
		router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request %s", r.URL.Path)
		})
		rd := newTestClient(t, router, &memoryTokens{})
		if err := rd.DeleteCredentials(context.Background()); err != nil {
			t.Fatalf("delete credentials: %v", err)
		}
	})

	t.Run("disables token and clears store", func(t *testing.T) {
		var disabled atomic.Int32
		router := mux.NewRouter()
		router.HandleFunc("/rest/disable_access_token", func(w http.ResponseWriter, r *http.Request) {
			disabled.Add(1)
			w.WriteHeader(http.StatusNoContent)
		})
		tokens := &memoryTokens{creds: &Credentials{AccessToken: "tok", RefreshToken: "R", ExpiresAt: time.Now().Add(time.Hour)}}
		rd := newTestClient(t, router, tokens)
		if err := rd.DeleteCredentials(context.Background()); err != nil {
			t.Fatalf("delete credentials: %v", err)
		}
		if disabled.Load() != 1 {
			t.Fatalf("expected disable_access_token call, got %d", disabled.Load())
		}
		if tokens.creds != nil {
			t.Fatal("expected credentials to be cleared")
		}
	})

	t.Run("remote failure still clears", func(t *testing.T) {
		router := mux.NewRouter()
		router.HandleFunc("/rest/disable_access_token", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		tokens := &memoryTokens{creds: &Credentials{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}}
		rd := newTestClient(t, router, tokens)
		if err := rd.DeleteCredentials(context.Background()); err != nil {
			t.Fatalf("delete credentials: %v", err)
		}
		if tokens.creds != nil {
			t.Fatal("expected credentials to be cleared")
		}
	})
}
