package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"

	"github.com/shirthaus/api/internal/domain"
	"github.com/shirthaus/api/internal/services"
)

const (
	labelContentType = "application/pdf"
	maxLabelBytes    = 10 << 20
)

// ErrLabelUnavailable wraps failures fetching the label document from the carrier.
var ErrLabelUnavailable = errors.New("storage: label document unavailable")

// BucketWriter writes a single object into the archive bucket.
type BucketWriter interface {
	Write(ctx context.Context, object, contentType string, data []byte) error
}

// GCSBucketWriter implements BucketWriter on top of a Cloud Storage bucket.
type GCSBucketWriter struct {
	bucket *gcs.BucketHandle
}

// NewGCSBucketWriter wraps a bucket handle for archive writes.
func NewGCSBucketWriter(client *gcs.Client, bucket string) (*GCSBucketWriter, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errInvalidBucket
	}
	return &GCSBucketWriter{bucket: client.Bucket(strings.TrimSpace(bucket))}, nil
}

// Write uploads the object, replacing any previous revision.
func (w *GCSBucketWriter) Write(ctx context.Context, object, contentType string, data []byte) error {
	if w == nil || w.bucket == nil {
		return errors.New("storage: bucket writer is not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return errInvalidObject
	}

	writer := w.bucket.Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("storage: write object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("storage: finalise object %s: %w", object, err)
	}
	return nil
}

// LabelArchive copies issued shipping label documents from the carrier's
// short-lived URL into the archive bucket.
type LabelArchive struct {
	writer BucketWriter
	http   *http.Client
}

var _ services.LabelArchiver = (*LabelArchive)(nil)

// NewLabelArchive constructs a label archiver. The HTTP client is optional.
func NewLabelArchive(writer BucketWriter, httpClient *http.Client) (*LabelArchive, error) {
	if writer == nil {
		return nil, errors.New("storage: bucket writer is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &LabelArchive{writer: writer, http: httpClient}, nil
}

// ArchiveLabel fetches the label document and stores it under the order's
// archive path. Carrier label URLs expire, so this runs at issue time.
func (a *LabelArchive) ArchiveLabel(ctx context.Context, reference string, label domain.ShippingLabel) (string, error) {
	if a == nil || a.writer == nil {
		return "", errors.New("storage: label archive is not initialised")
	}
	object, err := BuildObjectPath(PurposeShippingLabel, PathParams{
		OrderReference: reference,
		TrackingNumber: label.TrackingNumber,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(label.LabelURL) == "" {
		return "", fmt.Errorf("%w: no label url for %s", ErrLabelUnavailable, reference)
	}

	data, err := a.fetch(ctx, label.LabelURL)
	if err != nil {
		return "", err
	}
	if err := a.writer.Write(ctx, object, labelContentType, data); err != nil {
		return "", err
	}
	return object, nil
}

func (a *LabelArchive) fetch(ctx context.Context, labelURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, labelURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLabelUnavailable, err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLabelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrLabelUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLabelBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrLabelUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty label document", ErrLabelUnavailable)
	}
	if len(data) > maxLabelBytes {
		return nil, fmt.Errorf("%w: label document too large", ErrLabelUnavailable)
	}
	return data, nil
}

// ReportStore persists rendered report exports into the archive bucket.
type ReportStore struct {
	writer BucketWriter
}

var _ services.ReportWriter = (*ReportStore)(nil)

// NewReportStore constructs a report store.
func NewReportStore(writer BucketWriter) (*ReportStore, error) {
	if writer == nil {
		return nil, errors.New("storage: bucket writer is required")
	}
	return &ReportStore{writer: writer}, nil
}

// WriteReport stores the rendered export and returns its object path.
func (s *ReportStore) WriteReport(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	if s == nil || s.writer == nil {
		return "", errors.New("storage: report store is not initialised")
	}
	object, err := BuildObjectPath(PurposeSalesReport, PathParams{FileName: name})
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("storage: report data is empty")
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	if err := s.writer.Write(ctx, object, contentType, data); err != nil {
		return "", err
	}
	return object, nil
}
