package tasks

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/services"
	"github.com/desertthunder/placements/internal/shared"
)

// CreditsClient searches songs and fetches their credits.
type CreditsClient interface {
	Search(ctx context.Context, song, artist string) ([]services.GeniusHit, error)
	SongCredits(ctx context.Context, id string) (*services.GeniusCredits, error)
}

// TrackSearcher finds streaming tracks by title and artist.
type TrackSearcher interface {
	SearchTracks(ctx context.Context, title, artist string) ([]services.SpotifyTrack, error)
}

// StatsClient fetches the stream count history of a track.
type StatsClient interface {
	StreamHistory(ctx context.Context, trackID string) ([]services.StreamPoint, error)
}

// ViewsClient fetches the view count of a video.
type ViewsClient interface {
	ViewCount(ctx context.Context, videoID string) (int64, error)
}

// ItemProcessor turns one work item into a record. A nil record with a nil error means the item is dropped.
type ItemProcessor interface {
	Process(ctx context.Context, item models.WorkItem) (*models.SongRecord, error)
}

// PipelineOpts wires the collaborators of a [Pipeline].
type PipelineOpts struct {
	Credits CreditsClient
	Tracks  TrackSearcher
	Stats   StatsClient
	Views   ViewsClient
	// Limiter spaces calls to Stats. Required.
	Limiter *RateLimiter
	Logger  *log.Logger
}

// Pipeline is the per-item lookup chain: credits, track identity, stream statistics, video views.
//
// Every step degrades only its own fields. The only error Process returns is cancellation.
type Pipeline struct {
	credits CreditsClient
	tracks  TrackSearcher
	stats   StatsClient
	views   ViewsClient
	limiter *RateLimiter
	logger  *log.Logger
}

// NewPipeline creates a pipeline from opts.
func NewPipeline(opts PipelineOpts) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Pipeline{
		credits: opts.Credits,
		tracks:  opts.Tracks,
		stats:   opts.Stats,
		views:   opts.Views,
		limiter: opts.Limiter,
		logger:  logger.With("component", "pipeline"),
	}
}

// Process runs the chain for item. It returns (nil, nil) when no song identity could be established.
func (p *Pipeline) Process(ctx context.Context, item models.WorkItem) (*models.SongRecord, error) {
	record, err := p.resolveCredits(ctx, item)
	if err != nil || record == nil {
		return nil, err
	}

	steps := []func(context.Context, models.WorkItem, *models.SongRecord) error{
		p.resolveTrack,
		p.resolveStats,
		p.resolveViews,
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step(ctx, item, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func (p *Pipeline) resolveCredits(ctx context.Context, item models.WorkItem) (*models.SongRecord, error) {
	if item.HasExternalID() {
		credits, err := p.credits.SongCredits(ctx, item.ExternalID)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			p.degraded("credits", item, err)
			return nil, nil
		}
		if strings.TrimSpace(credits.Title) == "" || strings.TrimSpace(credits.Artist) == "" {
			p.logger.Warn("song has no usable identity", "item", item.String())
			return nil, nil
		}
		record := &models.SongRecord{SongName: credits.Title, ArtistName: credits.Artist}
		applyCredits(record, credits)
		return record, nil
	}

	if item.Validate() != nil {
		return nil, nil
	}
	record := &models.SongRecord{SongName: item.SongName, ArtistName: item.ArtistName}

	hits, err := p.credits.Search(ctx, item.SongName, item.ArtistName)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		p.degraded("credits search", item, err)
		return record, nil
	}

	id := PickHit(hits, item.SongName, item.ArtistName)
	if id == "" {
		p.logger.Debug("no credits candidate", "item", item.String())
		return record, nil
	}

	credits, err := p.credits.SongCredits(ctx, id)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		p.degraded("credits", item, err)
		return record, nil
	}
	applyCredits(record, credits)
	return record, nil
}

func (p *Pipeline) resolveTrack(ctx context.Context, item models.WorkItem, record *models.SongRecord) error {
	if item.KnownTrackID != "" {
		record.TrackID = models.Ptr(item.KnownTrackID)
		record.CanonicalTrackName = models.NonEmpty(item.SongName)
		return nil
	}

	tracks, err := p.tracks.SearchTracks(ctx, record.SongName, record.ArtistName)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		p.degraded("track search", item, err)
		return nil
	}

	if best, ok := BestTrack(tracks, record.SongName, record.ArtistName); ok {
		record.TrackID = models.Ptr(best.ID)
		record.CanonicalTrackName = models.NonEmpty(best.Name)
	}
	return nil
}

func (p *Pipeline) resolveStats(ctx context.Context, item models.WorkItem, record *models.SongRecord) error {
	if record.TrackID == nil {
		return nil
	}
	if _, err := p.limiter.Acquire(ctx); err != nil {
		return err
	}

	history, err := p.stats.StreamHistory(ctx, *record.TrackID)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		p.degraded("stream stats", item, err)
		return nil
	}
	record.StreamCount, record.DailyStreamDelta = services.StreamStats(history)
	return nil
}

func (p *Pipeline) resolveViews(ctx context.Context, item models.WorkItem, record *models.SongRecord) error {
	if record.VideoURL == nil {
		return nil
	}

	videoID, err := services.VideoID(*record.VideoURL)
	if err != nil {
		p.degraded("video id", item, err)
		return nil
	}

	views, err := p.views.ViewCount(ctx, videoID)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		p.degraded("video views", item, err)
		return nil
	}
	record.VideoViews = models.Ptr(views)
	return nil
}

func (p *Pipeline) degraded(step string, item models.WorkItem, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		p.logger.Debug(step+" not found", "item", item.String())
		return
	}
	p.logger.Warn(step+" failed", "item", item.String(), "error", err)
}

func applyCredits(record *models.SongRecord, credits *services.GeniusCredits) {
	record.CoProducers = models.NonEmpty(strings.Join(credits.CoProducers, ", "))
	record.Label = models.NonEmpty(strings.Join(credits.Labels, " & "))
	record.Copyright = models.NonEmpty(strings.Join(credits.Copyright, " & "))
	record.PhonographicCopyright = models.NonEmpty(strings.Join(credits.PhonographicCopyright, " & "))
	record.VideoURL = models.NonEmpty(credits.VideoURL)
}

// PickHit prefers the hit whose title and primary artist equal song and artist ignoring case,
// otherwise the first hit. It returns "" when there are no hits.
func PickHit(hits []services.GeniusHit, song, artist string) string {
	if len(hits) == 0 {
		return ""
	}
	song, artist = strings.TrimSpace(song), strings.TrimSpace(artist)
	for _, h := range hits {
		if strings.EqualFold(strings.TrimSpace(h.Title), song) && strings.EqualFold(strings.TrimSpace(h.PrimaryArtist), artist) {
			return h.ID
		}
	}
	return hits[0].ID
}

// BestTrack picks the search result for title by artist: an exact case-insensitive title,
// then a normalised title by a matching artist, then the top hit.
func BestTrack(tracks []services.SpotifyTrack, title, artist string) (services.SpotifyTrack, bool) {
	if len(tracks) == 0 {
		return services.SpotifyTrack{}, false
	}

	title = strings.TrimSpace(title)
	for _, t := range tracks {
		if strings.EqualFold(strings.TrimSpace(t.Name), title) {
			return t, true
		}
	}

	for _, t := range tracks {
		if shared.SameTitle(t.Name, title) && hasArtist(t, artist) {
			return t, true
		}
	}
	return tracks[0], true
}

func hasArtist(t services.SpotifyTrack, artist string) bool {
	want := shared.Alphanumeric(artist)
	if want == "" {
		return false
	}
	for _, name := range t.ArtistNames() {
		got := shared.Alphanumeric(name)
		if got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
			return true
		}
	}
	return false
}
