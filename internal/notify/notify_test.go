package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFeedKeepsNewestNotifications(t *testing.T) {
	feed := NewFeed(2)
	feed.Report("one", SeverityInfo)
	feed.Report("two", SeverityError)
	feed.Report("three", SeverityInfo)

	got := feed.Recent(0)
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].Message != "two" || got[1].Message != "three" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].ID != 3 {
		t.Fatalf("expected id 3, got %d", got[1].ID)
	}

	if last := feed.Recent(1); len(last) != 1 || last[0].Message != "three" {
		t.Fatalf("Recent(1) = %+v", last)
	}
}

func TestFeedSubscribe(t *testing.T) {
	feed := NewFeed(10)
	ch, unsubscribe := feed.Subscribe(4)

	feed.Report("hello", SeverityInfo)
	select {
	case n := <-ch:
		if n.Message != "hello" || n.Severity != SeverityInfo {
			t.Fatalf("unexpected notification: %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	feed.Report("after", SeverityInfo)
}

func TestMultiFansOut(t *testing.T) {
	var got []string
	collect := Func(func(message string, severity Severity) {
		got = append(got, string(severity)+":"+message)
	})
	Multi{collect, nil, Noop{}, collect}.Report("x", SeverityError)

	if len(got) != 2 || got[0] != "error:x" {
		t.Fatalf("unexpected fan out: %v", got)
	}
}

func TestNewDiscordSinkDisabledWithoutURL(t *testing.T) {
	if s := NewDiscordSink("  ", 0, nil); s != nil {
		t.Fatal("expected nil sink for empty webhook url")
	}
	var s *DiscordSink
	s.Report("ignored", SeverityError)
}

func TestDiscordSinkSend(t *testing.T) {
	var payload discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewDiscordSink(srv.URL, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := sink.Send(context.Background(), "RealDebrid download error: boom", SeverityError); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if payload.Username != discordUsername {
		t.Fatalf("unexpected username %q", payload.Username)
	}
	if !strings.Contains(payload.Content, "RealDebrid download error: boom") {
		t.Fatalf("unexpected content %q", payload.Content)
	}
}

func TestDiscordSinkReportsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewDiscordSink(srv.URL, time.Second, nil)
	err := sink.Send(context.Background(), "x", SeverityInfo)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}
