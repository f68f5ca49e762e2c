// Stream statistics (RapidAPI spotify-stream-count) implementation
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/tidwall/gjson"
)

const statsHost = "spotify-stream-count.p.rapidapi.com"

// StreamPoint is one dated cumulative stream total.
type StreamPoint struct {
	Date    string
	Streams int64
}

// StatsOpts configures a [StatsService].
type StatsOpts struct {
	APIKey     string
	Host       string // default spotify-stream-count.p.rapidapi.com
	BaseURL    string // default https://<Host>
	HTTPClient *http.Client
}

// StatsService reads historical cumulative stream counts for a streaming track id.
//
// The service is quota constrained; callers pace requests with a shared rate limiter.
type StatsService struct {
	api *APIClient
}

// NewStatsService creates a stats client authenticated with a RapidAPI key.
func NewStatsService(opts StatsOpts) (*StatsService, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%w: stats api key", shared.ErrMissingCredentials)
	}
	if opts.Host == "" {
		opts.Host = statsHost
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://" + opts.Host
	}

	headers := map[string]string{"x-rapidapi-host": opts.Host, "x-rapidapi-key": opts.APIKey}
	return &StatsService{api: NewAPIClient("stream stats", opts.BaseURL, opts.HTTPClient, headers)}, nil
}

// Name returns the name of the service
func (s *StatsService) Name() string {
	return "Stream Stats"
}

// StreamHistory returns the track's history, oldest first.
func (s *StatsService) StreamHistory(ctx context.Context, trackID string) ([]StreamPoint, error) {
	path := "/v1/spotify/tracks/" + url.PathEscape(trackID) + "/streams"
	resp, err := s.api.Get(ctx, path, url.Values{"trackId": {trackID}})
	if err != nil {
		return nil, err
	}
	return ParseStreamHistory(resp.Body)
}

// ParseStreamHistory reads a history payload: either a bare array of {date, streams} points
// or an object wrapping that array under "history" or "data".
//
// Any point without a numeric streams value makes the whole history malformed.
func ParseStreamHistory(body []byte) ([]StreamPoint, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: stream history is not JSON", shared.ErrMalformedResponse)
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		for _, key := range []string{"history", "data"} {
			if v := root.Get(key); v.IsArray() {
				root = v
				break
			}
		}
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: stream history is not a list", shared.ErrMalformedResponse)
	}

	var points []StreamPoint
	var parseErr error
	root.ForEach(func(_, point gjson.Result) bool {
		streams, ok := integer(point.Get("streams"))
		if !point.IsObject() || !ok {
			parseErr = fmt.Errorf("%w: stream point %s", shared.ErrMalformedResponse, point.Raw)
			return false
		}
		points = append(points, StreamPoint{Date: point.Get("date").String(), Streams: streams})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return points, nil
}

// StreamStats derives the latest total and the difference between the two most recent points.
//
// The delta is nil unless at least two points exist; the total is nil for an empty history.
func StreamStats(history []StreamPoint) (count, delta *int64) {
	n := len(history)
	if n == 0 {
		return nil, nil
	}
	count = models.Ptr(history[n-1].Streams)
	if n >= 2 {
		delta = models.Ptr(history[n-1].Streams - history[n-2].Streams)
	}
	return count, delta
}

func integer(v gjson.Result) (int64, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num != float64(int64(v.Num)) {
			return 0, false
		}
		return v.Int(), true
	case gjson.String:
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(v.Str), ",", ""), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
