// YouTube Data API v3 implementation: video statistics
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/placements/internal/shared"
)

const youtubeBaseURL = "https://www.googleapis.com/youtube/v3"

type youtubeVideosResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// YouTubeOpts configures a [YouTubeService].
type YouTubeOpts struct {
	APIKey     string
	BaseURL    string // default https://www.googleapis.com/youtube/v3
	HTTPClient *http.Client
}

// YouTubeService reads public video statistics with an API key.
type YouTubeService struct {
	api    *APIClient
	apiKey string
}

// NewYouTubeService creates a YouTube Data API client.
func NewYouTubeService(opts YouTubeOpts) (*YouTubeService, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w: youtube api key", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = youtubeBaseURL
	}
	return &YouTubeService{
		api:    NewAPIClient("youtube", opts.BaseURL, opts.HTTPClient, nil),
		apiKey: opts.APIKey,
	}, nil
}

// Name returns the name of the service
func (y *YouTubeService) Name() string {
	return "YouTube"
}

// ViewCount returns the view count of one video.
func (y *YouTubeService) ViewCount(ctx context.Context, videoID string) (int64, error) {
	q := url.Values{"part": {"statistics"}, "id": {videoID}, "key": {y.apiKey}}
	var resp youtubeVideosResponse
	if err := y.api.GetJSON(ctx, "/videos", q, &resp); err != nil {
		return 0, err
	}
	if len(resp.Items) == 0 {
		return 0, fmt.Errorf("%w: video %s", shared.ErrNotFound, videoID)
	}

	views, err := strconv.ParseInt(resp.Items[0].Statistics.ViewCount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: view count %q", shared.ErrMalformedResponse, resp.Items[0].Statistics.ViewCount)
	}
	return views, nil
}

// VideoID extracts the video id from either known URL shape:
// https://youtu.be/<id> or https://www.youtube.com/watch?v=<id>&...
func VideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: video url %q", shared.ErrInvalidInput, rawURL)
	}

	var id string
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		id = strings.Trim(u.Path, "/")
	case strings.Contains(u.Host, "youtube.com"):
		id = u.Query().Get("v")
	}
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("%w: no video id in %q", shared.ErrInvalidInput, rawURL)
	}
	return id, nil
}
