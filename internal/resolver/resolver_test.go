package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatic(t *testing.T) {
	got, err := Static{URL: "rtmp://example/live"}.Resolve(context.Background(), "anyone")
	if err != nil || got != "rtmp://example/live" {
		t.Errorf("Resolve() = %q, %v", got, err)
	}

	_, err = Static{}.Resolve(context.Background(), "anyone")
	if !errors.Is(err, ErrNotLive) {
		t.Errorf("empty URL: expected ErrNotLive, got %v", err)
	}
}

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"json form", `<script>{"user":{"roomId":"7312345"}}</script>`, "7312345"},
		{"query form", `<a href="/webcast?room_id=998877&x=1">`, "998877"},
		{"json preferred", `room_id=1 ... "roomId":"2"`, "2"},
		{"none", `<html>offline</html>`, ""},
		{"non numeric", `"roomId":""`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRoomID(tt.page); got != tt.want {
				t.Errorf("ParseRoomID() = %q, want %q", got, tt.want)
			}
		})
	}
}

// fakeTikTok serves both the live page and the room-info API.
func fakeTikTok(t *testing.T, page func(w http.ResponseWriter, r *http.Request), roomInfo string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/@alice/live", page)
	mux.HandleFunc("/webcast/room/info/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("room_id") != "42" {
			t.Errorf("unexpected room_id %q", r.URL.Query().Get("room_id"))
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, roomInfo)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func livePage(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, `<html><script>{"roomId":"42"}</script></html>`)
}

func newTestTikTok(server *httptest.Server) *TikTok {
	return NewTikTok(WithPageBaseURL(server.URL), WithAPIBaseURL(server.URL+"/"))
}

func TestTikTokResolve(t *testing.T) {
	tests := []struct {
		name     string
		roomInfo string
		want     string
		notLive  bool
	}{
		{
			name:     "full hd preferred",
			roomInfo: `{"data":{"status":2,"stream_url":{"flv_pull_url":{"SD1":"http://sd","HD1":"http://hd","FULL_HD1":"http://fhd"},"rtmp_pull_url":"rtmp://r"}}}`,
			want:     "http://fhd",
		},
		{
			name:     "hd fallback",
			roomInfo: `{"data":{"status":2,"stream_url":{"flv_pull_url":{"SD1":"http://sd","HD1":"http://hd"}}}}`,
			want:     "http://hd",
		},
		{
			name:     "rtmp fallback",
			roomInfo: `{"data":{"status":2,"stream_url":{"rtmp_pull_url":"rtmp://r"}}}`,
			want:     "rtmp://r",
		},
		{
			name:     "finished room",
			roomInfo: `{"data":{"status":4}}`,
			notLive:  true,
		},
		{
			name:     "no data",
			roomInfo: `{}`,
			notLive:  true,
		},
		{
			name:     "no stream",
			roomInfo: `{"data":{"status":2,"stream_url":{}}}`,
			notLive:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := fakeTikTok(t, livePage, tt.roomInfo)
			got, err := newTestTikTok(server).Resolve(context.Background(), "@alice")
			if tt.notLive {
				if !errors.Is(err, ErrNotLive) {
					t.Errorf("expected ErrNotLive, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTikTokRedirectMeansOffline(t *testing.T) {
	server := fakeTikTok(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}, `{}`)

	_, err := newTestTikTok(server).Resolve(context.Background(), "alice")
	if !errors.Is(err, ErrNotLive) {
		t.Errorf("expected ErrNotLive for redirect, got %v", err)
	}
}

func TestTikTokPageWithoutRoom(t *testing.T) {
	server := fakeTikTok(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>nothing here</html>")
	}, `{}`)

	_, err := newTestTikTok(server).Resolve(context.Background(), "alice")
	if !errors.Is(err, ErrNotLive) {
		t.Errorf("expected ErrNotLive, got %v", err)
	}
}

func TestTikTokServerError(t *testing.T) {
	server := fakeTikTok(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, `{}`)

	_, err := newTestTikTok(server).Resolve(context.Background(), "alice")
	if err == nil || errors.Is(err, ErrNotLive) {
		t.Errorf("expected a lookup failure, got %v", err)
	}
}

func TestTikTokEmptyUser(t *testing.T) {
	if _, err := NewTikTok().Resolve(context.Background(), " @ "); err == nil {
		t.Error("expected error for empty username")
	}
}

func TestTikTokCancelledContext(t *testing.T) {
	server := fakeTikTok(t, livePage, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestTikTok(server).Resolve(ctx, "alice")
	if err == nil || errors.Is(err, ErrNotLive) {
		t.Errorf("expected a context error, got %v", err)
	}
}
