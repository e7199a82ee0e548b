package storage

import (
	"context"
	"errors"

	"github.com/shirthaus/api/internal/platform/auth"
)

// ErrPermissionDenied is returned when the caller may not access archived objects.
var ErrPermissionDenied = errors.New("storage: permission denied")

// AuthorizeDownload validates that the identity may fetch archived labels and
// report exports. These objects are back-office only, so staff or admin is
// always required.
func AuthorizeDownload(identity *auth.Identity) error {
	if identity == nil {
		return ErrPermissionDenied
	}
	if identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		return nil
	}
	return ErrPermissionDenied
}

// AuthorizeDownloadFromContext extracts the identity from context and validates access.
func AuthorizeDownloadFromContext(ctx context.Context) (*auth.Identity, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, ErrPermissionDenied
	}
	if err := AuthorizeDownload(identity); err != nil {
		return nil, err
	}
	return identity, nil
}
