package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shirthaus/api/internal/domain"
)

type memoryBucket struct {
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *memoryBucket) Write(_ context.Context, object, contentType string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	m.objects[object] = append([]byte(nil), data...)
	m.contentTypes[object] = contentType
	return nil
}

func TestArchiveLabelStoresDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 label"))
	}))
	defer server.Close()

	bucket := newMemoryBucket()
	archive, err := NewLabelArchive(bucket, server.Client())
	if err != nil {
		t.Fatalf("new label archive: %v", err)
	}

	path, err := archive.ArchiveLabel(context.Background(), "SH-260710-0001", domain.ShippingLabel{
		TrackingNumber: "TRK123",
		LabelURL:       server.URL + "/labels/trk123.pdf",
	})
	if err != nil {
		t.Fatalf("archive label: %v", err)
	}
	if path != "labels/SH-260710-0001/TRK123.pdf" {
		t.Fatalf("unexpected object path %s", path)
	}
	if string(bucket.objects[path]) != "%PDF-1.4 label" {
		t.Fatalf("unexpected stored bytes %q", bucket.objects[path])
	}
	if bucket.contentTypes[path] != "application/pdf" {
		t.Fatalf("unexpected content type %s", bucket.contentTypes[path])
	}
}

func TestArchiveLabelCarrierFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	archive, err := NewLabelArchive(newMemoryBucket(), server.Client())
	if err != nil {
		t.Fatalf("new label archive: %v", err)
	}

	_, err = archive.ArchiveLabel(context.Background(), "SH-260710-0001", domain.ShippingLabel{
		TrackingNumber: "TRK123",
		LabelURL:       server.URL + "/labels/trk123.pdf",
	})
	if !errors.Is(err, ErrLabelUnavailable) {
		t.Fatalf("expected ErrLabelUnavailable, got %v", err)
	}
}

func TestArchiveLabelRequiresURL(t *testing.T) {
	archive, err := NewLabelArchive(newMemoryBucket(), nil)
	if err != nil {
		t.Fatalf("new label archive: %v", err)
	}

	_, err = archive.ArchiveLabel(context.Background(), "SH-260710-0001", domain.ShippingLabel{TrackingNumber: "TRK123"})
	if !errors.Is(err, ErrLabelUnavailable) {
		t.Fatalf("expected ErrLabelUnavailable, got %v", err)
	}
}

func TestWriteReportReturnsObjectPath(t *testing.T) {
	bucket := newMemoryBucket()
	store, err := NewReportStore(bucket)
	if err != nil {
		t.Fatalf("new report store: %v", err)
	}

	path, err := store.WriteReport(context.Background(), "sales-20260701-20260801.csv", "text/csv", []byte("reference,email\n"))
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	if path != "reports/sales-20260701-20260801.csv" {
		t.Fatalf("unexpected object path %s", path)
	}
	if bucket.contentTypes[path] != "text/csv" {
		t.Fatalf("unexpected content type %s", bucket.contentTypes[path])
	}
}

func TestWriteReportRejectsTraversal(t *testing.T) {
	store, err := NewReportStore(newMemoryBucket())
	if err != nil {
		t.Fatalf("new report store: %v", err)
	}

	if _, err := store.WriteReport(context.Background(), "../secrets.csv", "text/csv", []byte("x")); err == nil {
		t.Fatal("expected traversal rejection")
	}
}
