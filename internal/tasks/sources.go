package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/services"
	"github.com/desertthunder/placements/internal/shared"
	"golang.org/x/time/rate"
)

// Source resolves one input reference to an ordered sequence of work items.
//
// limit <= 0 means unbounded.
type Source interface {
	Name() string
	Resolve(ctx context.Context, ref string, limit int) ([]models.WorkItem, error)
}

// CatalogClient is the slice of the credits service used to walk an artist's catalog.
type CatalogClient interface {
	ArtistID(ctx context.Context, pageURL string) (string, error)
	ArtistSongs(ctx context.Context, artistID string, page, perPage int) (*services.GeniusSongsPage, error)
}

// CollectionClient lists the tracks of streaming playlists and albums.
type CollectionClient interface {
	PlaylistTracks(ctx context.Context, playlistID string, limit int) ([]services.SpotifyTrack, error)
	AlbumTracks(ctx context.Context, albumID string, limit int) ([]services.SpotifyTrack, error)
}

// SongPageResolver maps a rendered song page to its catalog id.
type SongPageResolver interface {
	SongIDFromPage(ctx context.Context, songURL string) (string, error)
}

// PageRenderer renders a page in a browser session and returns the resulting DOM.
type PageRenderer interface {
	Render(ctx context.Context, pageURL string) ([]byte, error)
}

// CatalogAdapter walks an artist's paginated song catalog.
type CatalogAdapter struct {
	client   CatalogClient
	pageSize int
	pacer    *rate.Limiter
	logger   *log.Logger
}

// NewCatalogAdapter paces page requests at least pageDelay apart.
func NewCatalogAdapter(client CatalogClient, pageDelay time.Duration, logger *log.Logger) *CatalogAdapter {
	return &CatalogAdapter{
		client:   client,
		pageSize: services.GeniusPageSize,
		pacer:    rate.NewLimiter(rate.Every(pageDelay), 1),
		logger:   logger.With("source", "catalog"),
	}
}

func (a *CatalogAdapter) Name() string { return "catalog" }

// Resolve returns deduplicated catalog ids in service order, stopping at limit without requesting further pages.
func (a *CatalogAdapter) Resolve(ctx context.Context, ref string, limit int) ([]models.WorkItem, error) {
	pageURL := services.NormalizeArtistURL(ref)
	artistID, err := a.client.ArtistID(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrSourceResolution, pageURL, err)
	}

	var items []models.WorkItem
	seen := make(map[string]struct{})
	for page := 1; page != 0; {
		if err := a.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := a.client.ArtistSongs(ctx, artistID, page, a.pageSize)
		if err != nil {
			if len(items) == 0 || ctx.Err() != nil {
				return nil, fmt.Errorf("%w: artist %s page %d: %w", shared.ErrSourceResolution, artistID, page, err)
			}
			a.logger.Warn("stopping catalog walk early", "page", page, "items", len(items), "error", err)
			break
		}
		a.logger.Debug("fetched catalog page", "page", page, "songs", len(resp.IDs))

		for _, id := range resp.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			items = append(items, models.CatalogItem(id))
			if limit > 0 && len(items) >= limit {
				return items, nil
			}
		}

		if len(resp.IDs) == 0 {
			break
		}
		page = resp.NextPage
	}
	return items, nil
}

// CollectionAdapter lists a streaming playlist or album.
type CollectionAdapter struct {
	kind  string
	fetch func(ctx context.Context, id string, limit int) ([]services.SpotifyTrack, error)
}

// NewPlaylistAdapter resolves playlist references.
func NewPlaylistAdapter(client CollectionClient) *CollectionAdapter {
	return &CollectionAdapter{kind: "playlist", fetch: client.PlaylistTracks}
}

// NewAlbumAdapter resolves album references.
func NewAlbumAdapter(client CollectionClient) *CollectionAdapter {
	return &CollectionAdapter{kind: "album", fetch: client.AlbumTracks}
}

func (a *CollectionAdapter) Name() string { return a.kind }

// Matches reports whether ref points at this adapter's kind of collection.
func (a *CollectionAdapter) Matches(ref string) bool {
	_, ok := services.SpotifyResourceID(ref, a.kind)
	return ok
}

func (a *CollectionAdapter) Resolve(ctx context.Context, ref string, limit int) ([]models.WorkItem, error) {
	id, ok := services.SpotifyResourceID(ref, a.kind)
	if !ok {
		return nil, fmt.Errorf("%w: not a %s reference: %s", shared.ErrUnsupportedReference, a.kind, ref)
	}

	tracks, err := a.fetch(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", shared.ErrSourceResolution, a.kind, id, err)
	}

	items := make([]models.WorkItem, 0, len(tracks))
	for _, t := range tracks {
		item := models.NamedItem(t.Name, t.PrimaryArtist(), t.ID)
		if item.Validate() != nil {
			continue
		}
		items = append(items, item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

// ManualAdapter parses free text, one "song - artist" pair per line.
type ManualAdapter struct{}

func (ManualAdapter) Name() string { return "manual" }

func (ManualAdapter) Resolve(_ context.Context, text string, limit int) ([]models.WorkItem, error) {
	items := ParseManual(text)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ParseManual splits text into name-pair items. " - " is preferred as the separator, then the first "-";
// lines without a separator or with an empty side are dropped.
func ParseManual(text string) []models.WorkItem {
	var items []models.WorkItem
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		sep, width := strings.Index(line, " - "), 3
		if sep < 0 {
			sep, width = strings.Index(line, "-"), 1
		}
		if sep < 0 {
			continue
		}

		song := strings.TrimSpace(line[:sep])
		artist := strings.TrimSpace(line[sep+width:])
		if song == "" || artist == "" {
			continue
		}
		items = append(items, models.NamedItem(song, artist, ""))
	}
	return items
}

// ScrapeAdapter renders an artist's songs page in a browser and resolves each song link to a catalog id.
type ScrapeAdapter struct {
	renderer PageRenderer
	songs    SongPageResolver
	logger   *log.Logger
}

// NewScrapeAdapter creates the browser-backed fallback for the catalog adapter.
func NewScrapeAdapter(renderer PageRenderer, songs SongPageResolver, logger *log.Logger) *ScrapeAdapter {
	return &ScrapeAdapter{renderer: renderer, songs: songs, logger: logger.With("source", "scrape")}
}

func (a *ScrapeAdapter) Name() string { return "scrape" }

func (a *ScrapeAdapter) Resolve(ctx context.Context, ref string, limit int) ([]models.WorkItem, error) {
	pageURL := services.NormalizeArtistURL(ref) + "/songs"
	dom, err := a.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: render %s: %w", shared.ErrSourceResolution, pageURL, err)
	}

	links, err := services.SongLinks(bytes.NewReader(dom))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrSourceResolution, pageURL, err)
	}

	var items []models.WorkItem
	seen := make(map[string]struct{})
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, err := a.songs.SongIDFromPage(ctx, link)
		if err != nil {
			a.logger.Warn("skipping song link", "url", link, "error", err)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, models.CatalogItem(id))
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

// Input is the raw user input of a run: a reference or manual text, never both.
type Input struct {
	Reference string
	Manual    string
}

// Validate enforces that exactly one of reference and manual text is given.
func (in Input) Validate() error {
	ref, manual := strings.TrimSpace(in.Reference), strings.TrimSpace(in.Manual)
	switch {
	case ref != "" && manual != "":
		return fmt.Errorf("%w: manual input and a reference are mutually exclusive", shared.ErrConfiguration)
	case ref == "" && manual == "":
		return fmt.Errorf("%w: a reference or manual input is required", shared.ErrConfiguration)
	}
	return nil
}

// Resolver selects a [Source] by the shape of the reference.
type Resolver struct {
	Catalog  Source
	Playlist *CollectionAdapter
	Album    *CollectionAdapter
	Manual   Source
	// Scrape, when set, is tried after the catalog adapter fails.
	Scrape Source
	Logger *log.Logger
}

// Select returns the adapter responsible for ref.
func (r *Resolver) Select(ref string) (Source, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case r.Playlist != nil && r.Playlist.Matches(ref):
		return r.Playlist, nil
	case r.Album != nil && r.Album.Matches(ref):
		return r.Album, nil
	case r.Catalog != nil && isCatalogReference(ref):
		return r.Catalog, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedReference, ref)
}

// Resolve turns the input into work items, reporting which source produced them.
//
// An empty result is a source resolution failure.
func (r *Resolver) Resolve(ctx context.Context, in Input, limit int) ([]models.WorkItem, string, error) {
	if err := in.Validate(); err != nil {
		return nil, "", err
	}

	if strings.TrimSpace(in.Manual) != "" {
		manual := r.Manual
		if manual == nil {
			manual = ManualAdapter{}
		}
		items, err := manual.Resolve(ctx, in.Manual, limit)
		return r.nonEmpty(items, manual.Name(), err)
	}

	src, err := r.Select(in.Reference)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", shared.ErrSourceResolution, err)
	}

	items, err := src.Resolve(ctx, in.Reference, limit)
	if (err != nil || len(items) == 0) && src == r.Catalog && r.Scrape != nil && ctx.Err() == nil {
		if r.Logger != nil {
			r.Logger.Warn("catalog lookup failed, falling back to page scrape", "reference", in.Reference, "error", err)
		}
		src = r.Scrape
		items, err = src.Resolve(ctx, in.Reference, limit)
	}
	return r.nonEmpty(items, src.Name(), err)
}

func (r *Resolver) nonEmpty(items []models.WorkItem, name string, err error) ([]models.WorkItem, string, error) {
	if err != nil {
		if !errors.Is(err, shared.ErrSourceResolution) && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", shared.ErrSourceResolution, err)
		}
		return nil, name, err
	}
	if len(items) == 0 {
		return nil, name, fmt.Errorf("%w: %s source produced no items", shared.ErrSourceResolution, name)
	}
	return items, name, nil
}

func isCatalogReference(ref string) bool {
	if ref == "" {
		return false
	}
	if strings.HasPrefix(ref, "@") || !strings.Contains(ref, "://") && !strings.Contains(ref, ":") {
		return !strings.ContainsAny(ref, " \t\n")
	}

	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	return host == "genius.com"
}
