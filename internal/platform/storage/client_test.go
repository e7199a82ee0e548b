package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shirthaus/api/internal/platform/auth"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestSignedDownloadURLSuccess(t *testing.T) {
	signer := &fakeSigner{email: "test@example.iam.gserviceaccount.com"}
	now := time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	res, err := client.SignedDownloadURL(context.Background(), "shirthaus-archive", "labels/SH-260710-0001/TRK123.pdf", DownloadOptions{
		ExpiresIn:    5 * time.Minute,
		Disposition:  `attachment; filename="TRK123.pdf"`,
		ResponseType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("SignedDownloadURL returned error: %v", err)
	}

	if res.Method != httpMethodGet {
		t.Fatalf("expected GET method, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestSignedDownloadURLRejectsMutatingMethod(t *testing.T) {
	signer := &fakeSigner{email: "test@example.iam.gserviceaccount.com"}
	client, err := NewClient(signer)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	_, err = client.SignedDownloadURL(context.Background(), "bucket", "object", DownloadOptions{Method: "PUT"})
	if !errors.Is(err, errMethodDenied) {
		t.Fatalf("expected errMethodDenied, got %v", err)
	}
}

func TestSignedDownloadURLExpiryTooLong(t *testing.T) {
	signer := &fakeSigner{email: "test@example.iam.gserviceaccount.com"}
	client, err := NewClient(signer)
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	_, err = client.SignedDownloadURL(context.Background(), "bucket", "object", DownloadOptions{ExpiresIn: 30 * time.Minute})
	if !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected errExpiryTooLong, got %v", err)
	}
}

func TestAuthorizeDownloadRequiresStaff(t *testing.T) {
	if err := AuthorizeDownload(&auth.Identity{UID: "cust-1", Roles: []string{auth.RoleUser}}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for customer, got %v", err)
	}
	if err := AuthorizeDownload(nil); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied for anonymous, got %v", err)
	}
	if err := AuthorizeDownload(&auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}); err != nil {
		t.Fatalf("expected staff to be allowed, got %v", err)
	}
}
