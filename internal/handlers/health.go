package handlers

import (
	"net/http"
	"sort"

	"github.com/shirthaus/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes backed by the system service.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs health handlers. A nil system service degrades
// readiness to a plain liveness response.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Commit     string            `json:"commit,omitempty"`
	Components map[string]string `json:"components,omitempty"`
	CheckedAt  string            `json:"checkedAt,omitempty"`
}

// Healthz reports process liveness and build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h != nil && h.system != nil {
		build := h.system.Build()
		resp.Version = build.Version
		resp.Commit = build.CommitSHA
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// Readyz reports dependency readiness; unhealthy dependencies return 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.system == nil {
		writeJSONResponse(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}

	health, err := h.system.Health(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}

	resp := healthResponse{
		Status:     "ok",
		Components: sortedComponents(health.Components),
		CheckedAt:  formatTime(health.CheckedAt),
	}
	status := http.StatusOK
	if !health.Healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}

func sortedComponents(components map[string]string) map[string]string {
	if len(components) == 0 {
		return nil
	}
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(components))
	for _, k := range keys {
		out[k] = components[k]
	}
	return out
}
