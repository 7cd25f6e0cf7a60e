package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// httpProvider talks to one external metadata API that speaks the common
// candidate-album JSON shape. MusicBrainz, Discogs and Last.fm are all
// fronted by the same adapter; only the base URL and credentials differ.
type httpProvider struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
}

// providerEndpoints maps the provider ids accepted in configuration to
// their API roots.
var providerEndpoints = map[string]string{
	"musicbrainz": "https://musicbrainz.org/ws/2",
	"discogs":     "https://api.discogs.com",
	"lastfm":      "https://ws.audioscrobbler.com/2.0",
}

// NewHTTPProvider builds the adapter for a configured provider id. The
// id must be one of the known endpoints unless a base URL override is
// given.
func NewHTTPProvider(id, baseURLOverride, apiKey string, timeout time.Duration) (MetadataProvider, error) {
	baseURL := baseURLOverride
	if baseURL == "" {
		var ok bool
		baseURL, ok = providerEndpoints[id]
		if !ok {
			return nil, fmt.Errorf("unknown metadata provider %q", id)
		}
	}
	return &httpProvider{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *httpProvider) ID() string {
	return p.id
}

func (p *httpProvider) Query(ctx context.Context, q ProviderQuery) (*ProviderResponse, error) {
	params := url.Values{}
	params.Set("kind", string(q.Kind))
	if len(q.Artists) > 0 {
		params.Set("artists", strings.Join(q.Artists, ","))
	}
	if len(q.Tags) > 0 {
		params.Set("tags", strings.Join(q.Tags, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/recommendations?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", p.id, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "spindle/1.0 (+https://github.com/cratedig/spindle)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", p.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", p.id, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", p.id, err)
	}

	var parsed ProviderResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", p.id, err)
	}
	parsed.Raw = raw
	return &parsed, nil
}
