package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// defaultPageBaseURL serves the public live page of a user.
	defaultPageBaseURL = "https://www.tiktok.com"

	// defaultAPIBaseURL serves the webcast room-info API.
	defaultAPIBaseURL = "https://webcast.tiktok.com"

	// defaultTimeout is the per-request timeout.
	defaultTimeout = 15 * time.Second

	// defaultUserAgent is sent with every request; the live page rejects
	// clients that do not look like a browser.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	// roomStatusLive is the room-info status of a running broadcast.
	roomStatusLive = 2

	// maxPageBytes caps how much of the live page is scanned for a room id.
	maxPageBytes = 4 << 20
)

var (
	roomIDJSONPattern  = regexp.MustCompile(`"roomId":"(\d+)"`)
	roomIDQueryPattern = regexp.MustCompile(`room_id=(\d+)`)
)

// flvQualities is the FLV pull-URL preference order.
var flvQualities = []string{"FULL_HD1", "HD1", "SD1"}

// TikTok resolves TikTok usernames to live stream URLs.
type TikTok struct {
	pageBaseURL string
	apiBaseURL  string
	userAgent   string
	httpClient  *http.Client
}

// TikTokOption configures a TikTok resolver.
type TikTokOption func(*TikTok)

// WithPageBaseURL overrides the live page host.
func WithPageBaseURL(base string) TikTokOption {
	return func(t *TikTok) {
		t.pageBaseURL = strings.TrimRight(base, "/")
	}
}

// WithAPIBaseURL overrides the room-info API host.
func WithAPIBaseURL(base string) TikTokOption {
	return func(t *TikTok) {
		t.apiBaseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) TikTokOption {
	return func(t *TikTok) {
		t.userAgent = ua
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) TikTokOption {
	return func(t *TikTok) {
		t.httpClient.Timeout = timeout
	}
}

// NewTikTok creates a TikTok resolver.
func NewTikTok(opts ...TikTokOption) *TikTok {
	t := &TikTok{
		pageBaseURL: defaultPageBaseURL,
		apiBaseURL:  defaultAPIBaseURL,
		userAgent:   defaultUserAgent,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			// A redirect away from the live page means the user is offline.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Resolve returns the best stream URL for user, or ErrNotLive.
func (t *TikTok) Resolve(ctx context.Context, user string) (string, error) {
	user = strings.TrimPrefix(strings.TrimSpace(user), "@")
	if user == "" {
		return "", fmt.Errorf("empty username")
	}
	roomID, err := t.RoomID(ctx, user)
	if err != nil {
		return "", err
	}
	return t.StreamURL(ctx, roomID)
}

// RoomID extracts the current room id from the user's live page.
func (t *TikTok) RoomID(ctx context.Context, user string) (string, error) {
	pageURL := t.pageBaseURL + "/@" + url.PathEscape(user) + "/live"
	resp, err := t.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return "", fmt.Errorf("%w: live page redirected (status %d)", ErrNotLive, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("live page error (status %d)", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read live page: %w", err)
	}
	if id := ParseRoomID(string(body)); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%w: no room id on live page", ErrNotLive)
}

// ParseRoomID finds a room id in a live page, preferring the embedded JSON
// form over a query-string one. It returns "" when there is none.
func ParseRoomID(page string) string {
	if m := roomIDJSONPattern.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	if m := roomIDQueryPattern.FindStringSubmatch(page); m != nil {
		return m[1]
	}
	return ""
}

// roomInfoResponse is the subset of the room-info API used here.
type roomInfoResponse struct {
	Data *struct {
		Status    int `json:"status"`
		StreamURL *struct {
			FLVPullURL  map[string]string `json:"flv_pull_url"`
			RTMPPullURL string            `json:"rtmp_pull_url"`
		} `json:"stream_url"`
	} `json:"data"`
}

// StreamURL looks up the stream of a room.
func (t *TikTok) StreamURL(ctx context.Context, roomID string) (string, error) {
	q := url.Values{}
	q.Set("aid", "1988")
	q.Set("room_id", roomID)
	resp, err := t.get(ctx, t.apiBaseURL+"/webcast/room/info/?"+q.Encode())
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("room info error (status %d)", resp.StatusCode)
	}

	var info roomInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode room info: %w", err)
	}
	return selectStreamURL(info)
}

func selectStreamURL(info roomInfoResponse) (string, error) {
	if info.Data == nil {
		return "", fmt.Errorf("%w: room info has no data", ErrNotLive)
	}
	if info.Data.Status != roomStatusLive {
		return "", fmt.Errorf("%w: room status %d", ErrNotLive, info.Data.Status)
	}
	if info.Data.StreamURL == nil {
		return "", fmt.Errorf("%w: room has no stream url", ErrNotLive)
	}
	for _, quality := range flvQualities {
		if u := info.Data.StreamURL.FLVPullURL[quality]; u != "" {
			return u, nil
		}
	}
	if u := info.Data.StreamURL.RTMPPullURL; u != "" {
		return u, nil
	}
	return "", fmt.Errorf("%w: room has no playable stream", ErrNotLive)
}

func (t *TikTok) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Referer", t.pageBaseURL+"/")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}
