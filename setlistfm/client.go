// Package setlistfm resolves setlist.fm links into wanted song collections.
package setlistfm

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

	"github.com/garry/plexbot/library"
)

// DefaultBaseURL is the setlist.fm REST API root.
const DefaultBaseURL = "https://api.setlist.fm/rest/1.0"

// ErrNotFound is returned when setlist.fm has no setlist with the given id.
var ErrNotFound = errors.New("setlist not found")

// Client wraps the setlist.fm API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Setlist is a concert setlist
type Setlist struct {
	ID        string
	Artist    string
	Country   string
	EventDate string
	Songs     []string
}

type setlistResponse struct {
	ID        string `json:"id"`
	EventDate string `json:"eventDate"`
	Artist    struct {
		Name string `json:"name"`
	} `json:"artist"`
	Venue struct {
		City struct {
			Country struct {
				Code string `json:"code"`
			} `json:"country"`
		} `json:"city"`
	} `json:"venue"`
	Sets struct {
		Set []struct {
			Song []struct {
				Name string `json:"name"`
			} `json:"song"`
		} `json:"set"`
	} `json:"sets"`
}

// NewClient creates a new setlist.fm client
func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
	}
}

// ParseSetlistID extracts the setlist id from a setlist.fm URL. The id is the
// text after the last "-" of the last path segment, without ".html".
func ParseSetlistID(link string) string {
	segment := link
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	if i := strings.LastIndex(segment, "-"); i >= 0 {
		segment = segment[i+1:]
	}
	return strings.ReplaceAll(segment, ".html", "")
}

// GetSetlist fetches a setlist by id
func (c *Client) GetSetlist(ctx context.Context, id string) (*Setlist, error) {
	if id == "" {
		return nil, errors.New("setlist id cannot be empty")
	}

	reqURL := fmt.Sprintf("%s/setlist/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	zerolog.Ctx(ctx).Debug().Str("url", reqURL).Msg("setlist.fm request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to make request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "setlist %s", id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("setlist.fm API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var body setlistResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode setlist response")
	}

	if body.Artist.Name == "" {
		return nil, errors.Newf("setlist %s has no artist", id)
	}

	setlist := &Setlist{
		ID:        body.ID,
		Artist:    body.Artist.Name,
		Country:   body.Venue.City.Country.Code,
		EventDate: body.EventDate,
	}
	for _, set := range body.Sets.Set {
		for _, song := range set.Song {
			setlist.Songs = append(setlist.Songs, song.Name)
		}
	}

	return setlist, nil
}

// GetCollection resolves a setlist link into a collection
func (c *Client) GetCollection(ctx context.Context, link string) (library.Collection, error) {
	setlist, err := c.GetSetlist(ctx, ParseSetlistID(link))
	if err != nil {
		return library.Collection{}, err
	}
	return setlist.Collection(), nil
}

// Year is the last "-" separated field of the dd-MM-yyyy event date.
func (s *Setlist) Year() string {
	parts := strings.Split(s.EventDate, "-")
	return parts[len(parts)-1]
}

// PlaylistName is "{artist} - {year} - {country}", stable across repeated imports.
func (s *Setlist) PlaylistName() string {
	return fmt.Sprintf("%s - %s - %s", s.Artist, s.Year(), s.Country)
}

// Collection converts the setlist into wanted songs in set order.
func (s *Setlist) Collection() library.Collection {
	coll := library.Collection{Name: s.PlaylistName()}
	for _, title := range s.Songs {
		coll.Songs = append(coll.Songs, library.WantedSong{Artist: s.Artist, Title: title})
	}
	return coll
}
