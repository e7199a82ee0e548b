package storage

import (
	"context"
	"errors"
	"strings"
)

// LabelLinks issues short-lived download links for archived shipping labels.
type LabelLinks struct {
	client *Client
	bucket string
}

// ErrLabelNotArchived indicates the order has no tracking number yet, so no
// archived label object can exist.
var ErrLabelNotArchived = errors.New("storage: label not archived")

// NewLabelLinks builds a link issuer over the labels bucket.
func NewLabelLinks(client *Client, bucket string) (*LabelLinks, error) {
	if client == nil {
		return nil, errors.New("storage: signed url client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: labels bucket is required")
	}
	return &LabelLinks{client: client, bucket: strings.TrimSpace(bucket)}, nil
}

// DownloadURL returns a signed GET link for the archived label PDF. The caller
// must be staff or admin; the identity is taken from the request context.
func (l *LabelLinks) DownloadURL(ctx context.Context, orderReference, trackingNumber string) (SignedURLResult, error) {
	if l == nil || l.client == nil {
		return SignedURLResult{}, errors.New("storage: label links not configured")
	}
	if _, err := AuthorizeDownloadFromContext(ctx); err != nil {
		return SignedURLResult{}, err
	}
	if strings.TrimSpace(trackingNumber) == "" {
		return SignedURLResult{}, ErrLabelNotArchived
	}

	object, err := BuildObjectPath(PurposeShippingLabel, PathParams{
		OrderReference: orderReference,
		TrackingNumber: trackingNumber,
	})
	if err != nil {
		return SignedURLResult{}, err
	}

	return l.client.SignedDownloadURL(ctx, l.bucket, object, DownloadOptions{
		Disposition: "attachment",
	})
}
