package debrid

import (
	"context"
	"time"
)

// Client is the contract the orchestration layer consumes from a debrid provider.
// Every method is a blocking remote call and must honour ctx cancellation by
// returning an error that satisfies errors.Is(err, ErrCancelled).
type Client interface {
	// RequestDeviceCode starts a device authorization attempt.
	RequestDeviceCode(ctx context.Context) (*DeviceCode, error)

	// PollForCredentials blocks until the device code is granted, denied or
	// expires. The polling cadence is owned by the implementation.
	PollForCredentials(ctx context.Context, deviceCode string) (*Credentials, error)

	// DeleteCredentials revokes and forgets the stored credentials. It is a
	// no-op when nothing is stored.
	DeleteCredentials(ctx context.Context) error

	// QueryAvailability checks which hashes are instantly available and returns
	// a record per cached hash. Hashes missing from the result are not cached.
	QueryAvailability(ctx context.Context, hashes []string) (map[string]AvailabilityRecord, error)

	// AddMagnet registers a magnet link and returns the remote torrent id.
	AddMagnet(ctx context.Context, magnetLink string) (string, error)

	// SelectFiles selects files of a remote torrent. An empty list selects all files.
	SelectFiles(ctx context.Context, remoteID string, fileIDs []int) error

	// GetTorrentInfo returns the hosted link at selectedIndex for a ready torrent.
	GetTorrentInfo(ctx context.Context, remoteID string, selectedIndex int) (string, error)

	// UnrestrictLink turns a hosted link into a direct download URL.
	UnrestrictLink(ctx context.Context, hostedLink string) (string, error)

	// DeleteTorrent removes a remote torrent entry.
	DeleteTorrent(ctx context.Context, remoteID string) error
}

// TokenStore persists the opaque credential blob used to authorize API calls.
// LoadCredentials returns (nil, nil) when nothing is stored.
type TokenStore interface {
	LoadCredentials(ctx context.Context) (*Credentials, error)
	SaveCredentials(ctx context.Context, creds *Credentials) error
	ClearCredentials(ctx context.Context) error
}

// DeviceCode is the first leg of the device authorization flow.
type DeviceCode struct {
	DeviceCode            string
	UserCode              string
	VerificationURL       string
	DirectVerificationURL string
	Interval              time.Duration
	ExpiresIn             time.Duration
}

// PresentationURL is the URL shown to the user, preferring the direct link
// that embeds the user code.
func (d DeviceCode) PresentationURL() string {
	if d.DirectVerificationURL != "" {
		return d.DirectVerificationURL
	}
	return d.VerificationURL
}

// Credentials are the long lived per-device secrets plus the current access token.
type Credentials struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is expired or will be within leeway.
func (c *Credentials) Expired(now time.Time, leeway time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(c.ExpiresAt)
}

// AvailabilityRecord describes the cached content of one torrent hash.
// No batches means the whole torrent is available without a file pick.
type AvailabilityRecord struct {
	Hash    string       `json:"hash"`
	Files   []FileChoice `json:"files,omitempty"`
	Batches []Batch      `json:"batches,omitempty"`
}

// Batch is one cached variant of a torrent: a set of files that can be
// selected together.
type Batch struct {
	Files []BatchFile `json:"files"`
}

// FileIDs returns the remote ids of every file in the batch.
func (b Batch) FileIDs() []int {
	ids := make([]int, len(b.Files))
	for i, f := range b.Files {
		ids[i] = f.ID
	}
	return ids
}

// BatchFile is a file inside a cached batch.
type BatchFile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// FileChoice is a user selectable file of a partially cached torrent.
// BatchIndex indexes AvailabilityRecord.Batches; BatchFileIndex is the file's
// position inside that batch, which is also its position in the torrent's
// link list once the batch is selected.
type FileChoice struct {
	Name           string `json:"name"`
	BatchIndex     int    `json:"batchIndex"`
	BatchFileIndex int    `json:"batchFileIndex"`
}
