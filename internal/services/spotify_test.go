package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/placements/internal/shared"
)

func newSpotifyTestServer(t *testing.T, tokenCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("expected client_credentials grant, got %q", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"app-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer app-token" {
			t.Errorf("expected app token, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("q") != "track:Blue artist:Alice" || r.URL.Query().Get("type") != "track" {
			t.Errorf("unexpected search query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"tracks":{"items":[
			{"id":"t1","name":"Blue - Remix","artists":[{"name":"Alice"},{"name":"Bob"}]},
			{"id":"t2","name":"Blue","artists":[{"name":"Alice"}]}
		]}}`)
	})
	mux.HandleFunc("/v1/playlists/pl/tracks", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "":
			fmt.Fprintf(w, `{"items":[
				{"track":{"id":"a","name":"A","artists":[{"name":"X"}]}},
				{"track":null},
				{"track":{"id":"b","name":"B","artists":[{"name":"Y"}]}}
			],"next":"%s/v1/playlists/pl/tracks?offset=100&limit=100"}`, server.URL)
		default:
			fmt.Fprint(w, `{"items":[{"track":{"id":"c","name":"C","artists":[{"name":"Z"}]}}],"next":null}`)
		}
	})
	mux.HandleFunc("/v1/albums/al/tracks", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("offset") {
		case "":
			fmt.Fprintf(w, `{"items":[{"id":"1","name":"One","artists":[{"name":"Band"}]},{"id":"2","name":"Two","artists":[{"name":"Band"}]}],
				"next":"%s/v1/albums/al/tracks?offset=50&limit=50"}`, server.URL)
		default:
			fmt.Fprint(w, `{"items":[{"id":"3","name":"Three","artists":[{"name":"Band"}]}],"next":null}`)
		}
	})

	server = httptest.NewServer(mux)
	return server
}

func TestSpotifyService(t *testing.T) {
	var tokenCalls atomic.Int32
	server := newSpotifyTestServer(t, &tokenCalls)
	defer server.Close()

	srv, err := NewSpotifyService(SpotifyOpts{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      server.URL + "/v1",
		TokenURL:     server.URL + "/api/token",
		HTTPClient:   server.Client(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()

	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(SpotifyOpts{ClientSecret: "s"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(SpotifyOpts{ClientID: "id"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("SearchTracks", func(t *testing.T) {
		tracks, err := srv.SearchTracks(ctx, "Blue", "Alice")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].PrimaryArtist() != "Alice" || strings.Join(tracks[0].ArtistNames(), ",") != "Alice,Bob" {
			t.Errorf("unexpected artists %+v", tracks[0].Artists)
		}
	})

	t.Run("PlaylistTracks follows next cursor", func(t *testing.T) {
		tracks, err := srv.PlaylistTracks(ctx, "pl", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var ids []string
		for _, tr := range tracks {
			ids = append(ids, tr.ID)
		}
		if strings.Join(ids, ",") != "a,b,c" {
			t.Errorf("expected a,b,c got %v", ids)
		}
	})

	t.Run("PlaylistTracks stops at limit", func(t *testing.T) {
		tracks, err := srv.PlaylistTracks(ctx, "pl", 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(tracks))
		}
	})

	t.Run("AlbumTracks follows next cursor", func(t *testing.T) {
		tracks, err := srv.AlbumTracks(ctx, "al", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 3 || tracks[2].Name != "Three" {
			t.Errorf("unexpected tracks %+v", tracks)
		}
	})

	t.Run("Token fetched once", func(t *testing.T) {
		if n := tokenCalls.Load(); n != 1 {
			t.Errorf("expected a single token request, got %d", n)
		}
	})
}

func TestSpotifyResourceID(t *testing.T) {
	tc := []struct {
		ref    string
		kind   string
		want   string
		wantOK bool
	}{
		{"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc", "playlist", "37i9dQZF1DXcBWIGoYBM5M", true},
		{"https://open.spotify.com/intl-de/album/4aawyAB9vmqN3uQ7FjRGTy", "album", "4aawyAB9vmqN3uQ7FjRGTy", true},
		{"spotify:playlist:abc", "playlist", "abc", true},
		{"https://open.spotify.com/album/xyz", "playlist", "", false},
		{"https://genius.com/playlist/abc", "playlist", "", false},
		{"https://open.spotify.com/playlist/", "playlist", "", false},
	}
	for _, tt := range tc {
		t.Run(tt.ref, func(t *testing.T) {
			got, ok := SpotifyResourceID(tt.ref, tt.kind)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("SpotifyResourceID() = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
