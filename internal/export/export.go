// Package export pushes finished runs to an S3-compatible object store.
//
// Every run lands under "<prefix>/<run id>/": the raw and simplified CSV projections followed by a
// status.json object reporting whether the run and the upload succeeded.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/placements/internal/formatter"
	"github.com/desertthunder/placements/internal/models"
	"github.com/desertthunder/placements/internal/shared"
	"github.com/desertthunder/placements/internal/tasks"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StatusObject is the name of the per-run status report.
const StatusObject = "status.json"

// ObjectPutter is the subset of [minio.Client] used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewClient connects to the object store described by cfg.
func NewClient(cfg shared.ObjectStoreConfig) (*minio.Client, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: object store %s: %w", shared.ErrConfiguration, cfg.Endpoint, err)
	}
	return client, nil
}

func validate(cfg shared.ObjectStoreConfig) error {
	var missing []string
	if strings.TrimSpace(cfg.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: object store needs %s", shared.ErrConfiguration, strings.Join(missing, " and "))
	}
	return nil
}

// Status is the body of [StatusObject].
type Status struct {
	RunID      string           `json:"run_id"`
	Sequence   int              `json:"sequence,omitempty"`
	Reference  string           `json:"reference"`
	Source     string           `json:"source"`
	Status     models.RunStatus `json:"status"`
	Success    bool             `json:"success"`
	Total      int              `json:"total_items"`
	Records    int              `json:"records"`
	Failed     int              `json:"failed"`
	Dropped    int              `json:"dropped"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Objects    []string         `json:"objects"`
	Error      string           `json:"error,omitempty"`
	ReportedAt time.Time        `json:"reported_at"`
}

// ObjectStoreExporter uploads run projections to a bucket.
type ObjectStoreExporter struct {
	client ObjectPutter
	cfg    shared.ObjectStoreConfig
	base   string
	logger *log.Logger
	now    func() time.Time
}

// NewObjectStoreExporter creates an exporter that names CSV objects after base.
func NewObjectStoreExporter(client ObjectPutter, cfg shared.ObjectStoreConfig, base string, logger *log.Logger) *ObjectStoreExporter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ObjectStoreExporter{
		client: client,
		cfg:    cfg,
		base:   base,
		logger: logger.With("component", "object-store"),
		now:    time.Now,
	}
}

func (e *ObjectStoreExporter) Name() string { return "object-store" }

// Preflight checks the bucket settings without contacting the store.
func (e *ObjectStoreExporter) Preflight() error {
	return validate(e.cfg)
}

// ObjectKey joins prefix, run id and name into an object key.
func ObjectKey(prefix, runID, name string) string {
	return strings.TrimPrefix(path.Join(strings.Trim(prefix, "/"), runID, name), "/")
}

// Export uploads both CSV projections, then the status report.
//
// When a projection upload fails the status report is still attempted, carrying the failure.
func (e *ObjectStoreExporter) Export(ctx context.Context, result *tasks.RunResult) error {
	raw, err := formatter.RawToCSV(result.Records)
	if err != nil {
		return err
	}
	simplified, err := formatter.SimplifiedToCSV(result.Simplified)
	if err != nil {
		return err
	}

	var uploaded []string
	var uploadErr error
	for _, obj := range []struct {
		name string
		data []byte
	}{
		{formatter.RawFileName(e.base), raw},
		{formatter.SimplifiedFileName(e.base), simplified},
	} {
		key := ObjectKey(e.cfg.Prefix, result.Summary.ID, obj.name)
		if err := e.put(ctx, key, obj.data, "text/csv"); err != nil {
			uploadErr = err
			break
		}
		uploaded = append(uploaded, key)
	}

	if err := e.ReportStatus(ctx, result.Summary, uploaded, uploadErr); err != nil {
		if uploadErr != nil {
			return fmt.Errorf("%w (status report also failed: %v)", uploadErr, err)
		}
		return err
	}
	return uploadErr
}

// ReportStatus uploads the status report for a run. A non-nil runErr marks the run as unsuccessful.
func (e *ObjectStoreExporter) ReportStatus(ctx context.Context, summary models.RunSummary, objects []string, runErr error) error {
	status := Status{
		RunID:      summary.ID,
		Sequence:   summary.Sequence,
		Reference:  summary.Reference,
		Source:     summary.Source,
		Status:     summary.Status,
		Success:    runErr == nil && summary.Status == models.RunCompleted,
		Total:      summary.Total,
		Records:    summary.Records,
		Failed:     summary.Failed,
		Dropped:    summary.Dropped,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Objects:    objects,
		ReportedAt: e.now(),
	}
	if status.Objects == nil {
		status.Objects = []string{}
	}
	if runErr != nil {
		status.Error = runErr.Error()
	}

	data, err := shared.MarshalJSON(status, true)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	return e.put(ctx, ObjectKey(e.cfg.Prefix, summary.ID, StatusObject), data, "application/json")
}

func (e *ObjectStoreExporter) put(ctx context.Context, key string, data []byte, contentType string) error {
	info, err := e.client.PutObject(ctx, e.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", key, e.cfg.Bucket, err)
	}
	e.logger.Debug("object uploaded", "bucket", e.cfg.Bucket, "key", key, "size", info.Size)
	return nil
}
