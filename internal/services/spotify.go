// Spotify Web API implementation: catalog search and cursor-paginated playlist/album listings
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/placements/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPlaylistPageSize = 100
	spotifyAlbumPageSize    = 50
	spotifySearchLimit      = 10
)

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

// ArtistNames lists the track's credited artist names.
func (t SpotifyTrack) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}

// PrimaryArtist is the first credited artist, or "".
func (t SpotifyTrack) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

type spotifyPlaylistItem struct {
	Track *SpotifyTrack `json:"track"`
}

type spotifyPlaylistPage struct {
	Items []spotifyPlaylistItem `json:"items"`
	Next  *string               `json:"next"`
}

type spotifyAlbumPage struct {
	Items []SpotifyTrack `json:"items"`
	Next  *string        `json:"next"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyOpts configures a [SpotifyService].
type SpotifyOpts struct {
	ClientID     string
	ClientSecret string
	BaseURL      string // default https://api.spotify.com/v1
	TokenURL     string // default https://accounts.spotify.com/api/token
	HTTPClient   *http.Client
}

// SpotifyService uses the client-credentials grant; the [oauth2] transport fetches and refreshes the app token.
type SpotifyService struct {
	api *APIClient
}

// NewSpotifyService creates a client whose requests carry an app token obtained with the client-credentials grant.
//
// The token is requested lazily on the first call.
func NewSpotifyService(opts SpotifyOpts) (*SpotifyService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_secret", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = spotifyTokenURL
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	cfg := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
	}
	client := cfg.Client(ctx)
	if opts.HTTPClient != nil {
		client.Timeout = opts.HTTPClient.Timeout
	}

	return &SpotifyService{api: NewAPIClient("spotify", opts.BaseURL, client, nil)}, nil
}

// Name returns the name of the service
func (s *SpotifyService) Name() string {
	return "Spotify"
}

// SearchTracks searches the catalog with a field-filtered "track:<title> artist:<artist>" query.
func (s *SpotifyService) SearchTracks(ctx context.Context, title, artist string) ([]SpotifyTrack, error) {
	q := url.Values{
		"q":     {fmt.Sprintf("track:%s artist:%s", title, artist)},
		"type":  {"track"},
		"limit": {strconv.Itoa(spotifySearchLimit)},
	}
	var resp spotifySearchResponse
	if err := s.api.GetJSON(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}
	return resp.Tracks.Items, nil
}

// PlaylistTracks follows the playlist's next cursor until it is exhausted or limit tracks are collected (limit <= 0 is unbounded).
//
// Removed or local entries without a track body are skipped.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]SpotifyTrack, error) {
	next := "/playlists/" + url.PathEscape(playlistID) + "/tracks?limit=" + strconv.Itoa(spotifyPlaylistPageSize)
	var tracks []SpotifyTrack
	for next != "" {
		var page spotifyPlaylistPage
		if err := s.api.GetJSON(ctx, next, nil, &page); err != nil {
			return tracks, err
		}
		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			tracks = append(tracks, *item.Track)
			if limit > 0 && len(tracks) >= limit {
				return tracks, nil
			}
		}
		next = cursor(page.Next)
	}
	return tracks, nil
}

// AlbumTracks follows the album's next cursor until it is exhausted or limit tracks are collected (limit <= 0 is unbounded).
func (s *SpotifyService) AlbumTracks(ctx context.Context, albumID string, limit int) ([]SpotifyTrack, error) {
	next := "/albums/" + url.PathEscape(albumID) + "/tracks?limit=" + strconv.Itoa(spotifyAlbumPageSize)
	var tracks []SpotifyTrack
	for next != "" {
		var page spotifyAlbumPage
		if err := s.api.GetJSON(ctx, next, nil, &page); err != nil {
			return tracks, err
		}
		for _, t := range page.Items {
			if t.ID == "" {
				continue
			}
			tracks = append(tracks, t)
			if limit > 0 && len(tracks) >= limit {
				return tracks, nil
			}
		}
		next = cursor(page.Next)
	}
	return tracks, nil
}

// SpotifyResourceID extracts the id that follows kind ("playlist", "album") in an open.spotify.com URL or a spotify: URI.
func SpotifyResourceID(ref, kind string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "spotify:"+kind+":"); ok && rest != "" {
		return rest, true
	}

	u, err := url.Parse(ref)
	if err != nil || !strings.HasSuffix(u.Host, "spotify.com") {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == kind && parts[i+1] != "" {
			return parts[i+1], true
		}
	}
	return "", false
}

func cursor(next *string) string {
	if next == nil {
		return ""
	}
	return *next
}
