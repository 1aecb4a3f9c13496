package htcore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/open-control-systems/device-poller/components/core"
	"github.com/open-control-systems/device-poller/components/status"
)

// CoordinatorHandler serves the coordinators state over HTTP.
//
// Endpoints:
//   - GET  /api/v1/coordinators - status of every coordinator.
//   - GET  /api/v1/snapshot?name=<name> - last good snapshot of the coordinator.
//   - POST /api/v1/refresh?name=<name> - request out of schedule refresh.
type CoordinatorHandler struct {
	registry *CoordinatorRegistry
}

// NewCoordinatorHandler is an initialization of CoordinatorHandler.
func NewCoordinatorHandler(registry *CoordinatorRegistry) *CoordinatorHandler {
	return &CoordinatorHandler{
		registry: registry,
	}
}

// Register registers the endpoints in mux.
func (h *CoordinatorHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/coordinators", h.handleCoordinators)
	mux.HandleFunc("/api/v1/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/v1/refresh", h.handleRefresh)
}

func (h *CoordinatorHandler) handleCoordinators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "error: unsupported method", http.StatusMethodNotAllowed)

		return
	}

	views := h.registry.List()

	statuses := make([]StatusView, 0, len(views))
	for _, view := range views {
		statuses = append(statuses, NewStatusView(view.Status()))
	}

	WriteJSON(w, http.StatusOK, statuses)
}

func (h *CoordinatorHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "error: unsupported method", http.StatusMethodNotAllowed)

		return
	}

	view, ok := h.lookup(w, r)
	if !ok {
		return
	}

	snapshot, ok := view.Snapshot()
	if !ok {
		http.Error(w, fmt.Sprintf("error: %v: name=%s", status.StatusNoData, view.Name()),
			http.StatusNotFound)

		return
	}

	WriteJSON(w, http.StatusOK, snapshot)
}

func (h *CoordinatorHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "error: unsupported method", http.StatusMethodNotAllowed)

		return
	}

	view, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := view.RequestRefresh(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, status.StatusInvalidState) {
			code = http.StatusConflict
		}

		http.Error(w, fmt.Sprintf("error: failed to request refresh: %v", err), code)

		return
	}

	core.LogDbg.Printf("http-coordinator-handler: refresh requested: name=%s\n", view.Name())

	WriteText(w, http.StatusAccepted, "OK")
}

func (h *CoordinatorHandler) lookup(w http.ResponseWriter, r *http.Request) (CoordinatorView, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "error: missing name", http.StatusBadRequest)

		return nil, false
	}

	view, ok := h.registry.Get(name)
	if !ok {
		http.Error(w, fmt.Sprintf("error: unknown coordinator: name=%s", name),
			http.StatusNotFound)

		return nil, false
	}

	return view, true
}
