// Package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/models"
)

// Logger discards everything.
func Logger() *log.Logger {
	return log.New(io.Discard)
}

// SampleRecords returns a fully populated record and a name-only one.
func SampleRecords() []models.SongRecord {
	return []models.SongRecord{
		{
			SongName:              "Blue",
			ArtistName:            "Alice",
			CoProducers:           models.Ptr("Producer, Other"),
			Label:                 models.Ptr("Label A & Label B"),
			Copyright:             models.Ptr("Copy Co"),
			PhonographicCopyright: models.Ptr("Phono Co"),
			TrackID:               models.Ptr("t1"),
			CanonicalTrackName:    models.Ptr("Blue"),
			StreamCount:           models.Ptr[int64](1234567),
			DailyStreamDelta:      models.Ptr[int64](4321),
			VideoURL:              models.Ptr("https://youtu.be/vid1"),
			VideoViews:            models.Ptr[int64](9000),
		},
		{SongName: "Red", ArtistName: "Bob"},
	}
}

// SampleSummary describes a completed run of [SampleRecords].
func SampleSummary() models.RunSummary {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	return models.RunSummary{
		ID:         "run-1",
		Reference:  "https://genius.com/artists/Producer",
		Source:     "catalog",
		Status:     models.RunCompleted,
		Total:      3,
		Records:    2,
		Failed:     1,
		StartedAt:  started,
		FinishedAt: &finished,
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
