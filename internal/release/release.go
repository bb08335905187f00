package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/schaermu/packsync/internal/syncerr"
)

// ErrNoAsset is returned by FindAsset when no asset has the wanted extension
var ErrNoAsset = errors.New("no matching release asset")

// Release is the subset of a GitHub release used for syncing
type Release struct {
	TagName string  `json:"tag_name"`
	Name    string  `json:"name"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
	Size int64  `json:"size"`
}

// FindAsset returns the first asset whose name ends with ext
func (r *Release) FindAsset(ext string) (Asset, error) {
	for _, a := range r.Assets {
		if strings.HasSuffix(a.Name, ext) {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: release %s has no %s asset", ErrNoAsset, r.TagName, ext)
}

// Provider returns the latest published release
type Provider interface {
	Latest(ctx context.Context) (*Release, error)
}

// GitHubProvider implements Provider against the GitHub releases API
type GitHubProvider struct {
	url       string
	userAgent string
	tokenFile string
	client    *http.Client
	logger    *slog.Logger
}

// NewGitHubProvider creates a provider for a releases/latest endpoint.
// tokenFile may be empty for public repositories.
func NewGitHubProvider(url, userAgent, tokenFile string, timeout time.Duration, logger *slog.Logger) *GitHubProvider {
	return &GitHubProvider{
		url:       url,
		userAgent: userAgent,
		tokenFile: tokenFile,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Latest fetches and decodes the latest release
func (p *GitHubProvider) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, syncerr.Network("GET", p.url, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	if p.tokenFile != "" {
		token, err := os.ReadFile(p.tokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(token)))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, syncerr.Network("GET", p.url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, syncerr.Network("GET", p.url, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rel); err != nil {
		return nil, syncerr.Network("decode", p.url, err)
	}
	if rel.TagName == "" {
		return nil, syncerr.Network("decode", p.url, fmt.Errorf("release has no tag_name"))
	}

	p.logger.Debug("fetched latest release", "tag", rel.TagName, "assets", len(rel.Assets))
	return &rel, nil
}
