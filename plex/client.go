package plex

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/garry/plexbot/config"
)

// Constants for Plex API
const (
	// Plex metadata types
	PlexArtistType = "8"
	PlexTrackType  = "10"

	// HTTP timeouts
	DefaultHTTPTimeout = 30 * time.Second
)

// Client wraps the Plex API client
type Client struct {
	baseURL     string
	token       string
	sectionID   int
	sectionName string
	serverID    string
	httpClient  *http.Client
}

// PlexTrack represents a track from Plex
type PlexTrack struct {
	ID       string `xml:"ratingKey,attr"`
	Title    string `xml:"title,attr"`
	Artist   string `xml:"grandparentTitle,attr"`
	Album    string `xml:"parentTitle,attr"`
	Duration int    `xml:"duration,attr"`
	File     string `xml:"file,attr"`
}

// PlexDirectory represents an artist or library section entry
type PlexDirectory struct {
	ID    string `xml:"ratingKey,attr"`
	Key   string `xml:"key,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// PlexPlaylist represents a Plex playlist
type PlexPlaylist struct {
	ID         string `xml:"ratingKey,attr" json:"ratingKey"`
	Title      string `xml:"title,attr" json:"title"`
	TrackCount int    `xml:"leafCount,attr" json:"leafCount"`
}

// PlexResponse represents the XML response from Plex API
type PlexResponse struct {
	XMLName     xml.Name        `xml:"MediaContainer"`
	Tracks      []PlexTrack     `xml:"Track"`
	Playlists   []PlexPlaylist  `xml:"Playlist"`
	Directories []PlexDirectory `xml:"Directory"`
}

// PlexServerInfo represents server information from Plex API
type PlexServerInfo struct {
	XMLName           xml.Name `xml:"MediaContainer"`
	FriendlyName      string   `xml:"friendlyName,attr"`
	MachineIdentifier string   `xml:"machineIdentifier,attr"`
	Version           string   `xml:"version,attr"`
}

// NewClient creates a new Plex client
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{Timeout: DefaultHTTPTimeout}

	if cfg.Plex.SkipTLSVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.Plex.URL, "/"),
		token:       cfg.Plex.Token,
		sectionID:   cfg.Plex.LibrarySectionID,
		sectionName: cfg.Plex.LibraryName,
		serverID:    cfg.Plex.ServerID,
		httpClient:  httpClient,
	}
}

// SetServerID sets the machine identifier used in playlist URIs
func (c *Client) SetServerID(serverID string) {
	c.serverID = serverID
}

// SectionID returns the music library section in use
func (c *Client) SectionID() int {
	return c.sectionID
}

// Prepare resolves the server ID and library section when they were not configured.
func (c *Client) Prepare(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	if c.serverID == "" {
		serverID, err := c.GetServerID(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to auto-discover server ID")
		}
		c.serverID = serverID
		log.Info().Str("server_id", serverID).Msg("Discovered Plex server ID")
	}

	if c.sectionID == 0 {
		sectionID, err := c.ResolveSectionID(ctx, c.sectionName)
		if err != nil {
			return err
		}
		c.sectionID = sectionID
		log.Info().Str("library", c.sectionName).Int("section_id", sectionID).Msg("Resolved Plex library section")
	}

	return nil
}

// GetServerInfo retrieves server information from the Plex API
func (c *Client) GetServerInfo(ctx context.Context) (*PlexServerInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/", nil, "server info")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var serverInfo PlexServerInfo
	if err := xml.NewDecoder(resp.Body).Decode(&serverInfo); err != nil {
		return nil, errors.Wrap(err, "failed to decode server info response")
	}

	return &serverInfo, nil
}

// GetServerID retrieves the server ID (machine identifier) from the Plex API
func (c *Client) GetServerID(ctx context.Context) (string, error) {
	serverInfo, err := c.GetServerInfo(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get server info")
	}

	if serverInfo.MachineIdentifier == "" {
		return "", errors.New("server info response does not contain machine identifier")
	}

	return serverInfo.MachineIdentifier, nil
}

// GetSections lists the library sections
func (c *Client) GetSections(ctx context.Context) ([]PlexDirectory, error) {
	var sections PlexResponse
	if err := c.getXML(ctx, "/library/sections", nil, "sections", &sections); err != nil {
		return nil, err
	}
	return sections.Directories, nil
}

// ResolveSectionID finds the section titled name
func (c *Client) ResolveSectionID(ctx context.Context, name string) (int, error) {
	sections, err := c.GetSections(ctx)
	if err != nil {
		return 0, err
	}

	for _, s := range sections {
		if s.Title != name {
			continue
		}
		id, err := strconv.Atoi(s.Key)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid section key '%s'", s.Key)
		}
		return id, nil
	}

	return 0, errors.Newf("library section %q not found", name)
}

// GetArtists lists every artist in the music section
func (c *Client) GetArtists(ctx context.Context) ([]PlexDirectory, error) {
	params := url.Values{}
	params.Add("type", PlexArtistType)

	var artists PlexResponse
	if err := c.getXML(ctx, fmt.Sprintf("/library/sections/%d/all", c.sectionID), params, "artists", &artists); err != nil {
		return nil, err
	}
	return artists.Directories, nil
}

// GetArtistTracks lists all tracks of an artist across albums
func (c *Client) GetArtistTracks(ctx context.Context, artistID string) ([]PlexTrack, error) {
	var tracks PlexResponse
	if err := c.getXML(ctx, fmt.Sprintf("/library/metadata/%s/allLeaves", artistID), nil, "artist tracks", &tracks); err != nil {
		return nil, err
	}
	return tracks.Tracks, nil
}

// GetPlaylists retrieves all playlists from the Plex server
func (c *Client) GetPlaylists(ctx context.Context) ([]PlexPlaylist, error) {
	var playlists PlexResponse
	if err := c.getXML(ctx, "/playlists", nil, "playlists", &playlists); err != nil {
		return nil, err
	}
	return playlists.Playlists, nil
}

// GetPlaylistItems lists the tracks of a playlist in playlist order
func (c *Client) GetPlaylistItems(ctx context.Context, playlistID string) ([]PlexTrack, error) {
	var items PlexResponse
	if err := c.getXML(ctx, fmt.Sprintf("/playlists/%s/items", playlistID), nil, "playlist items", &items); err != nil {
		return nil, err
	}
	return items.Tracks, nil
}

// CreatePlaylist creates a new audio playlist holding trackIDs in order
func (c *Client) CreatePlaylist(ctx context.Context, title string, trackIDs []string) (*PlexPlaylist, error) {
	if len(trackIDs) == 0 {
		return nil, errors.New("cannot create a playlist without tracks")
	}

	params := url.Values{}
	params.Add("type", "audio")
	params.Add("title", title)
	params.Add("smart", "0")
	params.Add("uri", c.metadataURI(trackIDs))

	resp, err := c.doAccept(ctx, http.MethodPost, "/playlists", params, "playlist creation", "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var playlistResp struct {
		MediaContainer struct {
			Metadata []PlexPlaylist `json:"Metadata"`
		} `json:"MediaContainer"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&playlistResp); err != nil {
		return nil, errors.Wrap(err, "failed to decode playlist creation response")
	}

	if len(playlistResp.MediaContainer.Metadata) == 0 {
		return nil, errors.New("no playlist returned from creation request")
	}

	created := playlistResp.MediaContainer.Metadata[0]
	zerolog.Ctx(ctx).Debug().Str("playlist", created.Title).Str("playlist_id", created.ID).Msg("Plex playlist created")
	return &created, nil
}

// DeletePlaylist removes a playlist
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/playlists/"+playlistID, nil, "playlist deletion")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// AddTracksToPlaylist appends tracks to an existing playlist
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}

	params := url.Values{}
	params.Add("uri", c.metadataURI(trackIDs))

	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/playlists/%s/items", playlistID), params, "playlist add")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), `leafCountAdded="0"`) {
		return errors.Newf("plex did not add any of %d tracks to playlist %s", len(trackIDs), playlistID)
	}

	zerolog.Ctx(ctx).Debug().Str("playlist_id", playlistID).Int("tracks", len(trackIDs)).Msg("Plex playlist extended")
	return nil
}

// RefreshLibrary asks Plex to rescan the music section
func (c *Client) RefreshLibrary(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/library/sections/%d/refresh", c.sectionID), nil, "library refresh")
	if err != nil {
		return err
	}
	resp.Body.Close()
	zerolog.Ctx(ctx).Info().Int("section_id", c.sectionID).Msg("Plex library refresh requested")
	return nil
}

func (c *Client) metadataURI(trackIDs []string) string {
	return fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s", c.serverID, strings.Join(trackIDs, ","))
}

func (c *Client) getXML(ctx context.Context, path string, params url.Values, what string, out *PlexResponse) error {
	resp, err := c.do(ctx, http.MethodGet, path, params, what)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", what)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, what string) (*http.Response, error) {
	return c.doAccept(ctx, method, path, params, what, "application/xml")
}

// doAccept performs an authenticated request. Any non-2xx status is an error.
func (c *Client) doAccept(ctx context.Context, method, path string, params url.Values, what, accept string) (*http.Response, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("X-Plex-Token", c.token)

	reqURL := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s request", what)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("X-Plex-Token", c.token)

	zerolog.Ctx(ctx).Debug().Str("method", method).Str("url", reqURL).Msg("Plex request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to make %s request", what)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errors.Newf("plex %s API returned status %d: %s", what, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return resp, nil
}
