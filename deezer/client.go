// Package deezer resolves album titles with the public Deezer search API.
package deezer

import (
	"context"
	"encoding/json"
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

// DefaultBaseURL is the Deezer API root.
const DefaultBaseURL = "https://api.deezer.com"

// Deezer allows 50 requests every 5 seconds.
const requestsPerSecond = 10

// Client queries the Deezer search endpoint
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// Track is one search hit
type Track struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
}

type searchResponse struct {
	Data  []Track `json:"data"`
	Total int     `json:"total"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// NewClient creates a new Deezer client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 5),
	}
}

// Search runs an advanced track search restricted to artist and title.
func (c *Client) Search(ctx context.Context, artist, title string) ([]Track, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("artist:'%s' track:'%s'", artist, title))
	reqURL := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	zerolog.Ctx(ctx).Debug().Str("url", reqURL).Msg("Deezer request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("Deezer API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode search response")
	}
	// Deezer reports quota and query errors with a 200 status
	if body.Error != nil {
		return nil, errors.Newf("Deezer API error %d: %s", body.Error.Code, body.Error.Message)
	}

	return body.Data, nil
}

// AlbumFor returns the album of the first search hit, or "" when nothing matched.
func (c *Client) AlbumFor(ctx context.Context, artist, title string) (string, error) {
	tracks, err := c.Search(ctx, artist, title)
	if err != nil {
		return "", err
	}
	if len(tracks) == 0 {
		return "", nil
	}
	return tracks[0].Album.Title, nil
}

// Name identifies the lookup in logs.
func (c *Client) Name() string { return "deezer" }
