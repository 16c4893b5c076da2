package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Zerr0-C00L/rdfetch/internal/magnet"
	"github.com/Zerr0-C00L/rdfetch/internal/metrics"
)

const (
	realDebridBaseURL  = "https://api.real-debrid.com/rest/1.0"
	realDebridAuthURL  = "https://api.real-debrid.com/oauth/v2"
	openSourceClientID = "X245A4XAIBGVM"

	// Real-Debrid allows checking up to 100 hashes at once
	availabilityBatchSize = 100
	tokenRefreshLeeway    = time.Minute
)

// Option customises a RealDebrid client.
type Option func(*RealDebrid)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(rd *RealDebrid) {
		if client != nil {
			rd.httpClient = client
		}
	}
}

// WithBaseURL overrides the REST API base URL (used in tests).
func WithBaseURL(baseURL string) Option {
	return func(rd *RealDebrid) {
		if baseURL != "" {
			rd.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithAuthURL overrides the OAuth base URL (used in tests).
func WithAuthURL(authURL string) Option {
	return func(rd *RealDebrid) {
		if authURL != "" {
			rd.authURL = strings.TrimRight(authURL, "/")
		}
	}
}

// WithClientID overrides the OAuth client id used for the device flow.
func WithClientID(clientID string) Option {
	return func(rd *RealDebrid) {
		if clientID != "" {
			rd.clientID = clientID
		}
	}
}

// WithAPIKey authorizes every call with a static API token instead of the
// stored OAuth credentials.
func WithAPIKey(apiKey string) Option {
	return func(rd *RealDebrid) {
		rd.apiKey = strings.TrimSpace(apiKey)
	}
}

// WithRateLimit throttles outgoing requests. A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(rd *RealDebrid) {
		if rps <= 0 {
			rd.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		rd.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithPollInterval overrides the device credential polling interval
// advertised by the server.
func WithPollInterval(interval time.Duration) Option {
	return func(rd *RealDebrid) {
		rd.pollInterval = interval
	}
}

// WithRetry overrides the retry budget for rate limited or failed requests.
func WithRetry(maxAttempts int, baseBackoff time.Duration) Option {
	return func(rd *RealDebrid) {
		if maxAttempts > 0 {
			rd.maxAttempts = maxAttempts
		}
		if baseBackoff > 0 {
			rd.retryBackoff = baseBackoff
		}
	}
}

// RealDebrid implements Client for Real-Debrid.
type RealDebrid struct {
	baseURL      string
	authURL      string
	clientID     string
	apiKey       string
	httpClient   *http.Client
	tokens       TokenStore
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	logger       *slog.Logger
	now          func() time.Time

	refreshGroup singleflight.Group

	pendingMu sync.Mutex
	pending   map[string]DeviceCode
}

// NewRealDebrid creates a new Real-Debrid client reading credentials from tokens.
func NewRealDebrid(tokens TokenStore, logger *slog.Logger, opts ...Option) *RealDebrid {
	if logger == nil {
		logger = slog.Default()
	}
	rd := &RealDebrid{
		baseURL:      realDebridBaseURL,
		authURL:      realDebridAuthURL,
		clientID:     openSourceClientID,
		httpClient:   NewHTTPClient(30 * time.Second),
		tokens:       tokens,
		maxAttempts:  3,
		retryBackoff: time.Second,
		logger:       logger,
		now:          time.Now,
		pending:      make(map[string]DeviceCode),
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// NewHTTPClient returns an instrumented HTTP client for debrid API calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// UsesAPIKey reports whether the client is authorized by a static API key.
func (rd *RealDebrid) UsesAPIKey() bool {
	return rd.apiKey != ""
}

type rdAPIError struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

type rdDeviceCode struct {
	DeviceCode            string `json:"device_code"`
	UserCode              string `json:"user_code"`
	Interval              int    `json:"interval"`
	ExpiresIn             int    `json:"expires_in"`
	VerificationURL       string `json:"verification_url"`
	DirectVerificationURL string `json:"direct_verification_url"`
}

type rdDeviceCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type rdToken struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type rdTorrentInfo struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Status   string   `json:"status"`
	Links    []string `json:"links"`
}

type rdUnrestrictLink struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Link     string `json:"link"`
	Download string `json:"download"`
}

type rdInstantFile struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// RequestDeviceCode starts the device authorization flow.
func (rd *RealDebrid) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	params := url.Values{}
	params.Set("client_id", rd.clientID)
	params.Set("new_credentials", "yes")

	data, err := rd.makeRequest(ctx, "request device code", http.MethodGet, rd.authURL+"/device/code", params, false)
	if err != nil {
		return nil, err
	}

	var resp rdDeviceCode
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &RemoteError{Op: "request device code", Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.DeviceCode == "" {
		return nil, &RemoteError{Op: "request device code", Message: "empty device code"}
	}

	code := DeviceCode{
		DeviceCode:            resp.DeviceCode,
		UserCode:              resp.UserCode,
		VerificationURL:       resp.VerificationURL,
		DirectVerificationURL: resp.DirectVerificationURL,
		Interval:              time.Duration(resp.Interval) * time.Second,
		ExpiresIn:             time.Duration(resp.ExpiresIn) * time.Second,
	}

	rd.pendingMu.Lock()
	rd.pending[code.DeviceCode] = code
	rd.pendingMu.Unlock()

	return &code, nil
}

// PollForCredentials polls until the user approves the device code, then
// exchanges it for access and refresh tokens.
func (rd *RealDebrid) PollForCredentials(ctx context.Context, deviceCode string) (*Credentials, error) {
	const op = "poll device credentials"

	rd.pendingMu.Lock()
	code, known := rd.pending[deviceCode]
	rd.pendingMu.Unlock()
	defer func() {
		rd.pendingMu.Lock()
		delete(rd.pending, deviceCode)
		rd.pendingMu.Unlock()
	}()

	interval := 5 * time.Second
	if known && code.Interval > 0 {
		interval = code.Interval
	}
	if rd.pollInterval > 0 {
		interval = rd.pollInterval
	}
	expiresIn := 10 * time.Minute
	if known && code.ExpiresIn > 0 {
		expiresIn = code.ExpiresIn
	}
	deadline := rd.now().Add(expiresIn)

	params := url.Values{}
	params.Set("client_id", rd.clientID)
	params.Set("code", deviceCode)
	endpoint := rd.authURL + "/device/credentials"

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, data, err := rd.do(ctx, op, http.MethodGet, endpoint, params, "")
		switch {
		case err != nil:
			if IsCancelled(err) {
				return nil, err
			}
			rd.logger.Debug("device credential poll failed", "error", err)
		case status >= 200 && status < 300:
			var creds rdDeviceCredentials
			if err := json.Unmarshal(data, &creds); err == nil && creds.ClientSecret != "" {
				return rd.exchangeDeviceCode(ctx, creds.ClientID, creds.ClientSecret, deviceCode)
			}
		default:
			var apiErr rdAPIError
			_ = json.Unmarshal(data, &apiErr)
			switch strings.ToLower(apiErr.Error) {
			case "access_denied", "denied":
				return nil, &RemoteError{Op: op, StatusCode: status, Code: apiErr.ErrorCode, Message: apiErr.Error, Err: ErrAuthorizationDenied}
			case "expired_token", "expired":
				return nil, &RemoteError{Op: op, StatusCode: status, Code: apiErr.ErrorCode, Message: apiErr.Error, Err: ErrAuthorizationExpired}
			}
		}

		if !rd.now().Before(deadline) {
			return nil, &RemoteError{Op: op, Err: ErrAuthorizationExpired}
		}

		select {
		case <-ctx.Done():
			return nil, rd.wrapTransportErr(ctx, op, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (rd *RealDebrid) exchangeDeviceCode(ctx context.Context, clientID, clientSecret, code string) (*Credentials, error) {
	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("client_secret", clientSecret)
	params.Set("code", code)
	params.Set("grant_type", "http://oauth.net/grant_type/device/1.0")

	data, err := rd.makeRequest(ctx, "exchange token", http.MethodPost, rd.authURL+"/token", params, false)
	if err != nil {
		return nil, err
	}

	var token rdToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, &RemoteError{Op: "exchange token", Err: fmt.Errorf("decode response: %w", err)}
	}
	if token.AccessToken == "" {
		return nil, &RemoteError{Op: "exchange token", Message: "empty access token"}
	}

	creds := &Credentials{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if token.ExpiresIn > 0 {
		creds.ExpiresAt = rd.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return creds, nil
}

// RefreshToken forces an access token refresh from the stored refresh token.
func (rd *RealDebrid) RefreshToken(ctx context.Context) error {
	if rd.apiKey != "" {
		return nil
	}
	_, err := rd.accessToken(ctx, true)
	return err
}

func (rd *RealDebrid) accessToken(ctx context.Context, force bool) (string, error) {
	if rd.apiKey != "" {
		return rd.apiKey, nil
	}
	if rd.tokens == nil {
		return "", &RemoteError{Op: "authorize", Err: ErrNotAuthenticated}
	}

	creds, err := rd.tokens.LoadCredentials(ctx)
	if err != nil {
		return "", &RemoteError{Op: "load credentials", Err: err}
	}
	if creds == nil || (creds.AccessToken == "" && creds.RefreshToken == "") {
		return "", &RemoteError{Op: "authorize", Err: ErrNotAuthenticated}
	}
	if !force && !creds.Expired(rd.now(), tokenRefreshLeeway) {
		return creds.AccessToken, nil
	}

	v, err, _ := rd.refreshGroup.Do("token", func() (interface{}, error) {
		refreshed, err := rd.exchangeDeviceCode(ctx, creds.ClientID, creds.ClientSecret, creds.RefreshToken)
		if err != nil {
			return "", err
		}
		if err := rd.tokens.SaveCredentials(ctx, refreshed); err != nil {
			return "", &RemoteError{Op: "save credentials", Err: err}
		}
		rd.logger.Info("Refreshed Real-Debrid access token", "expires_at", refreshed.ExpiresAt)
		return refreshed.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// DeleteCredentials disables the current access token and forgets the stored
// credentials. It succeeds without remote calls when nothing is stored.
func (rd *RealDebrid) DeleteCredentials(ctx context.Context) error {
	if rd.tokens == nil {
		return nil
	}
	creds, err := rd.tokens.LoadCredentials(ctx)
	if err != nil {
		return &RemoteError{Op: "load credentials", Err: err}
	}
	if creds == nil {
		return nil
	}

	if creds.AccessToken != "" && rd.apiKey == "" {
		if _, err := rd.makeRequest(ctx, "disable access token", http.MethodGet, rd.baseURL+"/disable_access_token", nil, true); err != nil {
			if IsCancelled(err) {
				return err
			}
			rd.logger.Warn("Could not disable Real-Debrid access token", "error", err)
		}
	}

	if err := rd.tokens.ClearCredentials(ctx); err != nil {
		return &RemoteError{Op: "clear credentials", Err: err}
	}
	return nil
}

// QueryAvailability checks which hashes are cached on Real-Debrid.
func (rd *RealDebrid) QueryAvailability(ctx context.Context, hashes []string) (map[string]AvailabilityRecord, error) {
	records := make(map[string]AvailabilityRecord)
	valid := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if magnet.ValidHash(h) {
			valid = append(valid, strings.ToLower(strings.TrimSpace(h)))
		} else {
			rd.logger.Warn("skipping malformed info hash", "hash", h)
		}
	}
	hashes = valid
	if len(hashes) == 0 {
		return records, nil
	}

	for i := 0; i < len(hashes); i += availabilityBatchSize {
		end := i + availabilityBatchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[i:end]

		// GET /torrents/instantAvailability/{hash1}/{hash2}/...
		segments := make([]string, len(batch))
		for j, h := range batch {
			segments[j] = url.PathEscape(h)
		}
		endpoint := fmt.Sprintf("%s/torrents/instantAvailability/%s", rd.baseURL, strings.Join(segments, "/"))
		data, err := rd.makeRequest(ctx, "check availability", http.MethodGet, endpoint, nil, true)
		if err != nil {
			return nil, err
		}

		// Format: { "hash1": { "rd": [{ "fileId": {...} }] }, "hash2": [] }
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, &RemoteError{Op: "check availability", Err: fmt.Errorf("decode response: %w", err)}
		}

		for hash, value := range raw {
			var hosts map[string][]map[string]rdInstantFile
			if err := json.Unmarshal(value, &hosts); err != nil {
				// uncached hashes come back as an empty array
				continue
			}
			if record, ok := buildAvailabilityRecord(strings.ToLower(hash), hosts["rd"]); ok {
				records[record.Hash] = record
			}
		}
	}

	rd.logger.Info("Checked Real-Debrid cache",
		"total", len(hashes),
		"cached", len(records))

	return records, nil
}

func buildAvailabilityRecord(hash string, variants []map[string]rdInstantFile) (AvailabilityRecord, bool) {
	var batches []Batch
	for _, variant := range variants {
		if len(variant) == 0 {
			continue
		}
		files := make([]BatchFile, 0, len(variant))
		for key, file := range variant {
			id, err := strconv.Atoi(key)
			if err != nil {
				continue
			}
			files = append(files, BatchFile{ID: id, Name: file.Filename, Size: file.Filesize})
		}
		if len(files) == 0 {
			continue
		}
		sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
		batches = append(batches, Batch{Files: files})
	}

	if len(batches) == 0 {
		return AvailabilityRecord{}, false
	}
	record := AvailabilityRecord{Hash: hash}
	if len(batches) == 1 && len(batches[0].Files) == 1 {
		return record, true
	}

	record.Batches = batches
	for bi, batch := range batches {
		for fi, file := range batch.Files {
			record.Files = append(record.Files, FileChoice{Name: file.Name, BatchIndex: bi, BatchFileIndex: fi})
		}
	}
	return record, true
}

// AddMagnet adds a magnet link to Real-Debrid
func (rd *RealDebrid) AddMagnet(ctx context.Context, magnetLink string) (string, error) {
	params := url.Values{}
	params.Set("magnet", magnetLink)

	data, err := rd.makeRequest(ctx, "add magnet", http.MethodPost, rd.baseURL+"/torrents/addMagnet", params, true)
	if err != nil {
		return "", err
	}

	var result struct {
		ID  string `json:"id"`
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &RemoteError{Op: "add magnet", Err: fmt.Errorf("decode response: %w", err)}
	}
	if result.ID == "" {
		return "", &RemoteError{Op: "add magnet", Message: "empty torrent id"}
	}

	return result.ID, nil
}

// SelectFiles selects files from a torrent; an empty list selects all of them.
func (rd *RealDebrid) SelectFiles(ctx context.Context, remoteID string, fileIDs []int) error {
	endpoint := fmt.Sprintf("%s/torrents/selectFiles/%s", rd.baseURL, url.PathEscape(remoteID))

	files := "all"
	if len(fileIDs) > 0 {
		ids := make([]string, len(fileIDs))
		for i, id := range fileIDs {
			ids[i] = strconv.Itoa(id)
		}
		files = strings.Join(ids, ",")
	}

	params := url.Values{}
	params.Set("files", files)

	_, err := rd.makeRequest(ctx, "select files", http.MethodPost, endpoint, params, true)
	return err
}

// GetTorrentInfo returns the hosted link at selectedIndex once the torrent is downloaded.
func (rd *RealDebrid) GetTorrentInfo(ctx context.Context, remoteID string, selectedIndex int) (string, error) {
	const op = "get torrent info"
	endpoint := fmt.Sprintf("%s/torrents/info/%s", rd.baseURL, url.PathEscape(remoteID))

	data, err := rd.makeRequest(ctx, op, http.MethodGet, endpoint, nil, true)
	if err != nil {
		return "", err
	}

	var info rdTorrentInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return "", &RemoteError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	rd.logger.Debug("Real-Debrid torrent info", "id", remoteID, "status", info.Status, "links", len(info.Links))

	if info.Status != "downloaded" {
		return "", &RemoteError{Op: op, Message: fmt.Sprintf("torrent not cached (status: %s)", info.Status)}
	}
	if selectedIndex < 0 || selectedIndex >= len(info.Links) {
		return "", &RemoteError{Op: op, Message: fmt.Sprintf("no download link at index %d (%d links)", selectedIndex, len(info.Links))}
	}
	return info.Links[selectedIndex], nil
}

// UnrestrictLink converts a Real-Debrid hosted link to a direct download link
func (rd *RealDebrid) UnrestrictLink(ctx context.Context, hostedLink string) (string, error) {
	params := url.Values{}
	params.Set("link", hostedLink)

	data, err := rd.makeRequest(ctx, "unrestrict link", http.MethodPost, rd.baseURL+"/unrestrict/link", params, true)
	if err != nil {
		return "", err
	}

	var result rdUnrestrictLink
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &RemoteError{Op: "unrestrict link", Err: fmt.Errorf("decode response: %w", err)}
	}

	// Use the 'download' field which is the actual streaming URL
	if result.Download != "" {
		return result.Download, nil
	}
	if result.Link != "" {
		return result.Link, nil
	}
	return "", &RemoteError{Op: "unrestrict link", Message: "empty download link"}
}

// DeleteTorrent removes a torrent from Real-Debrid
func (rd *RealDebrid) DeleteTorrent(ctx context.Context, remoteID string) error {
	endpoint := fmt.Sprintf("%s/torrents/delete/%s", rd.baseURL, url.PathEscape(remoteID))
	_, err := rd.makeRequest(ctx, "delete torrent", http.MethodDelete, endpoint, nil, true)
	return err
}

// User is the account behind the current credentials.
type User struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Points     int    `json:"points"`
	Type       string `json:"type"`
	Premium    int    `json:"premium"`
	Expiration string `json:"expiration"`
}

// User fetches the account of the current credentials.
func (rd *RealDebrid) User(ctx context.Context) (*User, error) {
	data, err := rd.makeRequest(ctx, "get user", http.MethodGet, rd.baseURL+"/user", nil, true)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, &RemoteError{Op: "get user", Message: "malformed response", Err: err}
	}
	return &user, nil
}

// TestConnection tests the Real-Debrid API connection
func (rd *RealDebrid) TestConnection(ctx context.Context) error {
	_, err := rd.User(ctx)
	return err
}

// makeRequest performs an HTTP request to Real-Debrid API with retry logic for rate limiting
func (rd *RealDebrid) makeRequest(ctx context.Context, op, method, endpoint string, params url.Values, authorized bool) ([]byte, error) {
	var lastErr error
	forceRefresh := false

	for attempt := 0; attempt < rd.maxAttempts; attempt++ {
		// Exponential backoff for retries: 1s, 2s, 4s
		if attempt > 0 && !forceRefresh {
			backoff := rd.retryBackoff * time.Duration(1<<uint(attempt-1))
			if err := sleepContext(ctx, backoff); err != nil {
				return nil, rd.wrapTransportErr(ctx, op, err)
			}
		}

		token := ""
		if authorized {
			var err error
			token, err = rd.accessToken(ctx, forceRefresh)
			if err != nil {
				return nil, err
			}
		}
		refreshed := forceRefresh
		forceRefresh = false

		status, data, err := rd.do(ctx, op, method, endpoint, params, token)
		if err != nil {
			// a POST may have been applied before the connection failed
			if IsCancelled(err) || !idempotent(method) {
				return nil, err
			}
			lastErr = err
			continue
		}

		// Retry on 429 (Too Many Requests)
		if status == http.StatusTooManyRequests {
			lastErr = &RemoteError{Op: op, StatusCode: status, Message: "rate limited by Real-Debrid"}
			continue
		}

		if status == http.StatusUnauthorized && authorized && rd.apiKey == "" && !refreshed {
			forceRefresh = true
			lastErr = apiError(op, status, data)
			continue
		}

		if status < 200 || status >= 300 {
			return nil, apiError(op, status, data)
		}

		return data, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, &RemoteError{Op: op, Message: "max retries exceeded"}
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// do issues one request and returns the status code and body.
func (rd *RealDebrid) do(ctx context.Context, op, method, endpoint string, params url.Values, token string) (int, []byte, error) {
	if rd.limiter != nil {
		if err := rd.limiter.Wait(ctx); err != nil {
			return 0, nil, rd.wrapTransportErr(ctx, op, err)
		}
	}

	reqURL := endpoint
	var body io.Reader
	if params != nil {
		if method == http.MethodGet || method == http.MethodDelete {
			reqURL = endpoint + "?" + params.Encode()
		} else {
			body = strings.NewReader(params.Encode())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return 0, nil, &RemoteError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := rd.httpClient.Do(req)
	if err != nil {
		metrics.DebridRequestsTotal.WithLabelValues(op, "error").Inc()
		return 0, nil, rd.wrapTransportErr(ctx, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	metrics.DebridRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.DebridRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return 0, nil, rd.wrapTransportErr(ctx, op, fmt.Errorf("read response: %w", err))
	}

	rd.logger.Debug("Real-Debrid request", "op", op, "method", method, "status", resp.StatusCode, "duration", time.Since(start))
	return resp.StatusCode, data, nil
}

func (rd *RealDebrid) wrapTransportErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrCancelled)
	}
	return &RemoteError{Op: op, Err: err}
}

func apiError(op string, status int, data []byte) error {
	var apiErr rdAPIError
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
		return &RemoteError{Op: op, StatusCode: status, Code: apiErr.ErrorCode, Message: apiErr.Error}
	}
	return &RemoteError{Op: op, StatusCode: status, Message: strings.TrimSpace(string(data))}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
