// Genius API implementation: song credits, search, and artist catalogs
package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/placements/internal/shared"
	"github.com/tidwall/gjson"
)

const (
	geniusAPIURL = "https://api.genius.com"
	geniusWebURL = "https://genius.com"

	// GeniusPageSize is the largest page the artist songs endpoint serves.
	GeniusPageSize = 50
)

// custom_performances labels carrying rights information
const (
	performanceLabel        = "Label"
	performanceCopyright    = "Copyright ©"
	performancePhonographic = "Phonographic Copyright ℗"
)

type geniusArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type geniusPerformance struct {
	Label   string         `json:"label"`
	Artists []geniusArtist `json:"artists"`
}

type geniusMedia struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

type geniusSong struct {
	ID                 int64               `json:"id"`
	Title              string              `json:"title"`
	PrimaryArtist      geniusArtist        `json:"primary_artist"`
	ProducerArtists    []geniusArtist      `json:"producer_artists"`
	CustomPerformances []geniusPerformance `json:"custom_performances"`
	Media              []geniusMedia       `json:"media"`
}

type geniusSongResponse struct {
	Response struct {
		Song *geniusSong `json:"song"`
	} `json:"response"`
}

type geniusSearchResponse struct {
	Response struct {
		Hits []struct {
			Type   string     `json:"type"`
			Result geniusSong `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

type geniusArtistSongsResponse struct {
	Response struct {
		Songs    []geniusSong `json:"songs"`
		NextPage *int         `json:"next_page"`
	} `json:"response"`
}

// GeniusHit is one search candidate.
type GeniusHit struct {
	ID            string
	Title         string
	PrimaryArtist string
}

// GeniusCredits holds the rights and production metadata of one song.
type GeniusCredits struct {
	ID                    string
	Title                 string
	Artist                string
	CoProducers           []string
	Labels                []string
	Copyright             []string
	PhonographicCopyright []string
	VideoURL              string
}

// GeniusSongsPage is one page of an artist's catalog.
type GeniusSongsPage struct {
	IDs []string
	// NextPage is 0 when the catalog is exhausted.
	NextPage int
}

// GeniusOpts configures a [GeniusService].
type GeniusOpts struct {
	Token      string
	APIURL     string // default https://api.genius.com
	WebURL     string // default https://genius.com
	HTTPClient *http.Client
}

// GeniusService talks to both the public API (search, artist songs) and the site's internal song API (credits).
type GeniusService struct {
	api *APIClient
	web *APIClient
}

// NewGeniusService creates a Genius client. The bearer token is sent to both hosts.
func NewGeniusService(opts GeniusOpts) (*GeniusService, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("%w: genius token", shared.ErrMissingCredentials)
	}
	if opts.APIURL == "" {
		opts.APIURL = geniusAPIURL
	}
	if opts.WebURL == "" {
		opts.WebURL = geniusWebURL
	}

	auth := map[string]string{"Authorization": "Bearer " + opts.Token, "Accept": "application/json"}
	return &GeniusService{
		api: NewAPIClient("genius", opts.APIURL, opts.HTTPClient, auth),
		web: NewAPIClient("genius", opts.WebURL, opts.HTTPClient, auth),
	}, nil
}

// Name returns the name of the service
func (g *GeniusService) Name() string {
	return "Genius"
}

// Search returns the song candidates for a "<song> <artist>" query, in relevance order.
func (g *GeniusService) Search(ctx context.Context, song, artist string) ([]GeniusHit, error) {
	var resp geniusSearchResponse
	q := url.Values{"q": {strings.TrimSpace(song + " " + artist)}}
	if err := g.api.GetJSON(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}

	hits := make([]GeniusHit, 0, len(resp.Response.Hits))
	for _, h := range resp.Response.Hits {
		if h.Type != "" && h.Type != "song" {
			continue
		}
		if h.Result.ID == 0 {
			continue
		}
		hits = append(hits, GeniusHit{
			ID:            strconv.FormatInt(h.Result.ID, 10),
			Title:         h.Result.Title,
			PrimaryArtist: h.Result.PrimaryArtist.Name,
		})
	}
	return hits, nil
}

// SongCredits fetches the credits of one song from the site's song API.
func (g *GeniusService) SongCredits(ctx context.Context, id string) (*GeniusCredits, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty song id", shared.ErrInvalidArgument)
	}

	var resp geniusSongResponse
	if err := g.web.GetJSON(ctx, "/api/songs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	song := resp.Response.Song
	if song == nil {
		return nil, fmt.Errorf("%w: song %s has no body", shared.ErrMalformedResponse, id)
	}

	credits := &GeniusCredits{
		ID:     strconv.FormatInt(song.ID, 10),
		Title:  song.Title,
		Artist: song.PrimaryArtist.Name,
	}
	for _, p := range song.ProducerArtists {
		if p.Name != "" {
			credits.CoProducers = append(credits.CoProducers, p.Name)
		}
	}
	credits.Labels = performers(song.CustomPerformances, performanceLabel)
	credits.Copyright = performers(song.CustomPerformances, performanceCopyright)
	credits.PhonographicCopyright = performers(song.CustomPerformances, performancePhonographic)
	for _, m := range song.Media {
		if m.Provider == "youtube" && m.URL != "" {
			credits.VideoURL = m.URL
			break
		}
	}
	return credits, nil
}

// ArtistSongs fetches one popularity-ordered page of an artist's songs.
func (g *GeniusService) ArtistSongs(ctx context.Context, artistID string, page, perPage int) (*GeniusSongsPage, error) {
	if perPage <= 0 || perPage > GeniusPageSize {
		perPage = GeniusPageSize
	}
	if page <= 0 {
		page = 1
	}

	q := url.Values{
		"sort":     {"popularity"},
		"per_page": {strconv.Itoa(perPage)},
		"page":     {strconv.Itoa(page)},
	}
	var resp geniusArtistSongsResponse
	if err := g.api.GetJSON(ctx, "/artists/"+url.PathEscape(artistID)+"/songs", q, &resp); err != nil {
		return nil, err
	}

	out := &GeniusSongsPage{IDs: make([]string, 0, len(resp.Response.Songs))}
	for _, s := range resp.Response.Songs {
		out.IDs = append(out.IDs, strconv.FormatInt(s.ID, 10))
	}
	if resp.Response.NextPage != nil && len(out.IDs) > 0 {
		out.NextPage = *resp.Response.NextPage
	}
	return out, nil
}

// ArtistID resolves an artist page URL to the catalog's numeric artist id using the page_data meta tag.
func (g *GeniusService) ArtistID(ctx context.Context, pageURL string) (string, error) {
	resp, err := g.web.Get(ctx, pageURL, nil)
	if err != nil {
		return "", err
	}

	content, ok := MetaContent(bytes.NewReader(resp.Body), "itemprop", "page_data")
	if !ok || !gjson.Valid(content) {
		return "", fmt.Errorf("%w: no page_data on %s", shared.ErrNotFound, pageURL)
	}

	data := gjson.Parse(content)
	if id := data.Get(`tracking_data.#(key=="Artist ID").value`); id.Exists() && id.String() != "" {
		return id.String(), nil
	}
	if id := data.Get("artist.id"); id.Exists() && id.String() != "" {
		return id.String(), nil
	}
	return "", fmt.Errorf("%w: no artist id on %s", shared.ErrNotFound, pageURL)
}

// SongIDFromPage resolves a song page URL to its numeric id via the app deep-link meta tag.
func (g *GeniusService) SongIDFromPage(ctx context.Context, songURL string) (string, error) {
	resp, err := g.web.Get(ctx, songURL, nil)
	if err != nil {
		return "", err
	}

	content, ok := MetaContent(bytes.NewReader(resp.Body), "property", "twitter:app:url:iphone")
	if !ok {
		return "", fmt.Errorf("%w: no song id on %s", shared.ErrNotFound, songURL)
	}
	id := content[strings.LastIndex(content, "/")+1:]
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", fmt.Errorf("%w: song deep link %q", shared.ErrMalformedResponse, content)
	}
	return id, nil
}

// NormalizeArtistURL turns "@name", "name", or a full artist URL into the canonical artist page URL.
func NormalizeArtistURL(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "@")
	ref = strings.TrimPrefix(ref, "http://")
	ref = strings.TrimPrefix(ref, "https://")
	ref = strings.TrimPrefix(ref, "www.")
	ref = strings.TrimPrefix(ref, "genius.com")
	ref = strings.Trim(ref, "/")
	ref = strings.TrimSuffix(ref, "/songs")
	ref = strings.TrimPrefix(ref, "artists/")
	ref = strings.TrimPrefix(ref, "@")
	return geniusWebURL + "/artists/" + ref
}

func performers(ps []geniusPerformance, label string) []string {
	for _, p := range ps {
		if p.Label != label {
			continue
		}
		names := make([]string, 0, len(p.Artists))
		for _, a := range p.Artists {
			if a.Name != "" {
				names = append(names, a.Name)
			}
		}
		return names
	}
	return nil
}
