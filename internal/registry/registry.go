package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound is returned when a requested version id is absent from the
// remote index.
var ErrNotFound = errors.New("runtime version not found in registry")

// Release is one runtime version as declared by the remote index. Digest is
// "<algo>:<hex>" when the index provides one; otherwise Size is the only
// integrity check available.
type Release struct {
	ID       string `json:"id"`
	AssetURL string `json:"asset_url"`
	Digest   string `json:"digest,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Client lists the runtime versions available for download. Implementations
// must return stable ids across calls.
type Client interface {
	ListVersions(ctx context.Context) ([]Release, error)
	Find(ctx context.Context, versionID string) (Release, error)
}

type httpClient struct {
	indexURL string
	client   *http.Client
}

func NewHTTPClient(indexURL string) Client {
	return &httpClient{
		indexURL: indexURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *httpClient) ListVersions(ctx context.Context) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.indexURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry index returned status %d", resp.StatusCode)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode registry index: %w", err)
	}

	return releases, nil
}

func (c *httpClient) Find(ctx context.Context, versionID string) (Release, error) {
	releases, err := c.ListVersions(ctx)
	if err != nil {
		return Release{}, err
	}

	for _, rel := range releases {
		if rel.ID == versionID {
			return rel, nil
		}
	}

	return Release{}, fmt.Errorf("%w: %s", ErrNotFound, versionID)
}
