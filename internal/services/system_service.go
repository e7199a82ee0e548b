package services

import (
	"context"
	"errors"
	"time"

	"github.com/shirthaus/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Clock  func() time.Time
	Build  BuildInfo
}

type systemService struct {
	health repositories.HealthRepository
	clock  func() time.Time
	build  BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing health and version endpoints.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock().UTC()
	}

	return &systemService{
		health: deps.Health,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

func (s *systemService) Health(ctx context.Context) (SystemHealth, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealth{}, err
	}

	checkedAt := report.CheckedAt
	if checkedAt.IsZero() {
		checkedAt = s.clock()
	}
	components := report.Components
	if components == nil {
		components = map[string]string{}
	}

	return SystemHealth{
		Healthy:    report.Healthy,
		Components: components,
		CheckedAt:  checkedAt.UTC(),
	}, nil
}

func (s *systemService) Build() BuildInfo {
	return s.build
}
