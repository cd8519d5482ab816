// Package musicbrainz looks up album titles through the MusicBrainz web service.
package musicbrainz

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the MusicBrainz web service root.
const DefaultBaseURL = "https://musicbrainz.org/ws/2"

// MusicBrainz asks anonymous clients for at most one request per second.
const requestsPerSecond = 1

// Client wraps the MusicBrainz API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
}

// Release represents a MusicBrainz release
type Release struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title"`
}

// Recording represents a MusicBrainz recording with the releases it appears on
type Recording struct {
	ID       string    `xml:"id,attr"`
	Title    string    `xml:"title"`
	Releases []Release `xml:"release-list>release"`
}

// SearchResponse represents the response from MusicBrainz recording search
type SearchResponse struct {
	Recordings []Recording `xml:"recording-list>recording"`
}

// NewClient creates a new MusicBrainz client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:   DefaultBaseURL,
		userAgent: "plexbot/1.0 (https://github.com/garry/plexbot)",
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// SearchRecordings searches for recordings by artist and title
func (c *Client) SearchRecordings(ctx context.Context, artist, title string) ([]Recording, error) {
	if artist == "" || title == "" {
		return nil, errors.New("artist and title cannot be empty")
	}

	query := fmt.Sprintf("artist:\"%s\" AND recording:\"%s\"",
		strings.ReplaceAll(artist, "\"", "\\\""),
		strings.ReplaceAll(title, "\"", "\\\""))

	params := url.Values{}
	params.Add("query", query)
	params.Add("fmt", "xml")
	params.Add("limit", "5")

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	reqURL := c.baseURL + "/recording/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	// MusicBrainz rejects requests without an identifying user agent
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml")

	zerolog.Ctx(ctx).Debug().Str("url", reqURL).Msg("MusicBrainz request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("MusicBrainz API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var searchResp SearchResponse
	if err := xml.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode XML response")
	}

	return searchResp.Recordings, nil
}

// AlbumFor returns the first release title of the best recording match.
// An empty string means MusicBrainz knows no release for the song.
func (c *Client) AlbumFor(ctx context.Context, artist, title string) (string, error) {
	recordings, err := c.SearchRecordings(ctx, artist, title)
	if err != nil {
		return "", err
	}

	for _, rec := range recordings {
		if len(rec.Releases) > 0 && rec.Releases[0].Title != "" {
			return rec.Releases[0].Title, nil
		}
	}
	return "", nil
}

// Name identifies the lookup in logs.
func (c *Client) Name() string { return "musicbrainz" }
