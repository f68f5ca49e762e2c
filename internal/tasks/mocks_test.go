package tasks

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/services"
	"github.com/desertthunder/placements/internal/shared"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type mockCredits struct {
	mu          sync.Mutex
	hits        map[string][]services.GeniusHit // keyed by "song|artist"
	credits     map[string]*services.GeniusCredits
	searchErr   error
	creditsErr  error
	searchCalls int
}

func (m *mockCredits) Search(ctx context.Context, song, artist string) ([]services.GeniusHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.hits[song+"|"+artist], nil
}

func (m *mockCredits) SongCredits(ctx context.Context, id string) (*services.GeniusCredits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.creditsErr != nil {
		return nil, m.creditsErr
	}
	if c, ok := m.credits[id]; ok {
		return c, nil
	}
	return nil, shared.ErrNotFound
}

type mockTracks struct {
	mu     sync.Mutex
	tracks map[string][]services.SpotifyTrack // keyed by "title|artist"
	err    error
	calls  int
}

func (m *mockTracks) SearchTracks(ctx context.Context, title, artist string) ([]services.SpotifyTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.tracks[title+"|"+artist], nil
}

type mockStats struct {
	history map[string][]services.StreamPoint
	err     error
}

func (m *mockStats) StreamHistory(ctx context.Context, trackID string) ([]services.StreamPoint, error) {
	if m.err != nil {
		return nil, m.err
	}
	h, ok := m.history[trackID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return h, nil
}

type mockViews struct {
	views map[string]int64
	err   error
}

func (m *mockViews) ViewCount(ctx context.Context, videoID string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	v, ok := m.views[videoID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return v, nil
}

type mockCatalog struct {
	mu        sync.Mutex
	artistID  string
	artistErr error
	pages     map[int]*services.GeniusSongsPage
	pageErr   map[int]error
	requested []int
}

func (m *mockCatalog) ArtistID(ctx context.Context, pageURL string) (string, error) {
	if m.artistErr != nil {
		return "", m.artistErr
	}
	return m.artistID, nil
}

func (m *mockCatalog) ArtistSongs(ctx context.Context, artistID string, page, perPage int) (*services.GeniusSongsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, page)
	if err := m.pageErr[page]; err != nil {
		return nil, err
	}
	if p, ok := m.pages[page]; ok {
		return p, nil
	}
	return &services.GeniusSongsPage{}, nil
}

// threePages serves 3 pages of 2 songs each.
func threePages() *mockCatalog {
	return &mockCatalog{
		artistID: "9",
		pages: map[int]*services.GeniusSongsPage{
			1: {IDs: []string{"1", "2"}, NextPage: 2},
			2: {IDs: []string{"3", "4"}, NextPage: 3},
			3: {IDs: []string{"5", "6"}, NextPage: 0},
		},
	}
}

type mockCollection struct {
	playlists map[string][]services.SpotifyTrack
	albums    map[string][]services.SpotifyTrack
	err       error
}

func (m *mockCollection) PlaylistTracks(ctx context.Context, id string, limit int) ([]services.SpotifyTrack, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.playlists[id], nil
}

func (m *mockCollection) AlbumTracks(ctx context.Context, id string, limit int) ([]services.SpotifyTrack, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.albums[id], nil
}

type mockRenderer struct {
	dom      string
	err      error
	rendered []string
}

func (m *mockRenderer) Render(ctx context.Context, pageURL string) ([]byte, error) {
	m.rendered = append(m.rendered, pageURL)
	if m.err != nil {
		return nil, m.err
	}
	return []byte(m.dom), nil
}

type mockSongPages struct {
	ids map[string]string
}

func (m *mockSongPages) SongIDFromPage(ctx context.Context, songURL string) (string, error) {
	if id, ok := m.ids[songURL]; ok {
		return id, nil
	}
	return "", shared.ErrNotFound
}

// fakeClock advances only when slept on or advanced explicitly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func fullCredentials() shared.Credentials {
	return shared.Credentials{
		GeniusToken:         "g",
		SpotifyClientID:     "id",
		SpotifyClientSecret: "secret",
		YouTubeAPIKey:       "yt",
		StatsAPIKey:         "stats",
	}
}
