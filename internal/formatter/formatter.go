// Package formatter renders run results as CSV and JSON and writes them to the output directory
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/tasks"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RawHeaders are the columns of the full projection.
var RawHeaders = []string{
	"Artist & Title",
	"Co-Producers",
	"Actual Track Name",
	"Label",
	"Phonographic_copyright",
	"Copyright",
	"Total Spotify Streams",
	"Daily Spotify Streams",
	"YouTube URL",
	"YouTube Views",
}

// SimplifiedHeaders are the columns of the simplified projection.
var SimplifiedHeaders = []string{
	"Artist & Title",
	"Co-Producers",
	"Label",
	"Total Spotify Streams",
	"Daily Spotify Streams",
	"YouTube Views",
}

var printer = message.NewPrinter(language.English)

// FormatCount renders n with thousands separators; nil renders as "".
func FormatCount(n *int64) string {
	if n == nil {
		return ""
	}
	return printer.Sprintf("%d", *n)
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// RawRow is one record in [RawHeaders] order.
func RawRow(r models.SongRecord) []string {
	return []string{
		r.ArtistTitle(),
		text(r.CoProducers),
		text(r.CanonicalTrackName),
		text(r.Label),
		text(r.PhonographicCopyright),
		text(r.Copyright),
		FormatCount(r.StreamCount),
		FormatCount(r.DailyStreamDelta),
		text(r.VideoURL),
		FormatCount(r.VideoViews),
	}
}

// SimplifiedRow is one simplified record in [SimplifiedHeaders] order.
func SimplifiedRow(r models.SimplifiedRecord) []string {
	return []string{
		r.ArtistTitle,
		text(r.CoProducers),
		text(r.Label),
		FormatCount(r.StreamCount),
		FormatCount(r.DailyStreamDelta),
		FormatCount(r.VideoViews),
	}
}

// RawToCSV converts records to CSV with [RawHeaders].
func RawToCSV(records []models.SongRecord) ([]byte, error) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, RawRow(r))
	}
	return toCSV(RawHeaders, rows)
}

// SimplifiedToCSV converts simplified records to CSV with [SimplifiedHeaders].
func SimplifiedToCSV(records []models.SimplifiedRecord) ([]byte, error) {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, SimplifiedRow(r))
	}
	return toCSV(SimplifiedHeaders, rows)
}

func toCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// Document is the JSON rendering of a run.
type Document struct {
	Summary    models.RunSummary         `json:"summary"`
	Records    []models.SongRecord       `json:"records"`
	Simplified []models.SimplifiedRecord `json:"simplified"`
}

// ToJSON renders both projections with the run summary.
func ToJSON(result *tasks.RunResult, pretty bool) ([]byte, error) {
	doc := Document{Summary: result.Summary, Records: result.Records, Simplified: result.Simplified}
	if doc.Records == nil {
		doc.Records = []models.SongRecord{}
	}
	if doc.Simplified == nil {
		doc.Simplified = []models.SimplifiedRecord{}
	}
	return shared.MarshalJSON(doc, pretty)
}

// WriteJSON writes the JSON rendering of result to w.
func WriteJSON(w io.Writer, result *tasks.RunResult) error {
	data, err := ToJSON(result, true)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// RawFileName is "<base> - Placement Tracker - Raw.csv".
func RawFileName(base string) string {
	return cleanBase(base) + " - Placement Tracker - Raw.csv"
}

// SimplifiedFileName is "<base> - Placement Tracker - Simplified.csv".
func SimplifiedFileName(base string) string {
	return cleanBase(base) + " - Placement Tracker - Simplified.csv"
}

func cleanBase(base string) string {
	base = strings.TrimSpace(base)
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	if base == "" {
		return "placements"
	}
	return base
}

// CSVExporter writes both projections into a directory.
type CSVExporter struct {
	dir   string
	base  string
	files []string
}

// NewCSVExporter creates an exporter writing "<base> - Placement Tracker - *.csv" files into dir.
func NewCSVExporter(dir, base string) *CSVExporter {
	if dir == "" {
		dir = "."
	}
	return &CSVExporter{dir: dir, base: base}
}

func (e *CSVExporter) Name() string { return "csv" }

// Preflight verifies that the output directory exists (creating it if needed) and is writable.
func (e *CSVExporter) Preflight() error {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return fmt.Errorf("%w: output directory %s: %w", shared.ErrConfiguration, e.dir, err)
	}
	probe, err := os.CreateTemp(e.dir, ".ptrack-*")
	if err != nil {
		return fmt.Errorf("%w: output directory %s is not writable: %w", shared.ErrConfiguration, e.dir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// Export writes the raw and simplified CSV files.
func (e *CSVExporter) Export(ctx context.Context, result *tasks.RunResult) error {
	raw, err := RawToCSV(result.Records)
	if err != nil {
		return fmt.Errorf("failed to generate raw CSV: %w", err)
	}
	simplified, err := SimplifiedToCSV(result.Simplified)
	if err != nil {
		return fmt.Errorf("failed to generate simplified CSV: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{RawFileName(e.base), raw},
		{SimplifiedFileName(e.base), simplified},
	}

	e.files = e.files[:0]
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(e.dir, f.name)
		if err := os.WriteFile(path, f.data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		e.files = append(e.files, path)
	}
	return nil
}

// Files lists the paths written by the last Export.
func (e *CSVExporter) Files() []string {
	return e.files
}

// DefaultBaseName names output after the run reference and date when no base name is configured.
func DefaultBaseName(reference string, at time.Time) string {
	ref, _, _ := strings.Cut(strings.TrimSpace(reference), "?")
	ref = strings.TrimSuffix(strings.TrimRight(ref, "/"), "/songs")
	if i := strings.LastIndexAny(ref, "/:"); i >= 0 {
		ref = ref[i+1:]
	}
	ref = strings.TrimPrefix(ref, "@")
	if ref == "" || ref == "manual" {
		ref = "Manual"
	}
	return cleanBase(ref) + " " + at.Format("2006-01-02")
}
