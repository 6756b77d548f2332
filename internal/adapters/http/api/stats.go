package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/okian/cadence/internal/domain/luck"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/types"
)

// StatsProvider returns state snapshots.
type StatsProvider interface {
	Stats(ctx context.Context) types.Stats
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, h.statsProvider.Stats(r.Context()))
}

// LuckDependencies reads and replaces the luck vector.
type LuckDependencies interface {
	Enqueue(ctx context.Context, e model.Event) bool
	Luck(ctx context.Context) map[string]float64
}

// LuckHandler handles GET and PUT /luck.
type LuckHandler struct {
	deps LuckDependencies
}

// NewLuckHandler creates a new luck handler.
func NewLuckHandler(deps LuckDependencies) *LuckHandler {
	return &LuckHandler{deps: deps}
}

// HandleLuck returns the luck vector on GET and restores one on PUT.
// Unknown keys in a PUT body are ignored by the picker.
func (h *LuckHandler) HandleLuck(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_luck"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.deps.Luck(r.Context()))
	case http.MethodPut:
		var vector map[string]float64
		if err := decode(r, &vector); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := validateLuck(vector); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if !h.deps.Enqueue(r.Context(), newEvent(model.Event{Kind: model.KindLuck, Luck: vector})) {
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
			return
		}
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
	default:
		methodNotAllowed(w, http.MethodGet+", "+http.MethodPut)
	}
}

func validateLuck(vector map[string]float64) error {
	if len(vector) == 0 {
		return errors.New("luck vector must not be empty")
	}
	for k, v := range vector {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > luck.MaxLuck {
			return fmt.Errorf("luck for %q must be a number in [0, %g]", k, luck.MaxLuck)
		}
	}
	return nil
}
