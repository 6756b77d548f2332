package api

import (
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/types"
)

// ControlHandler turns host reports and operator commands into loop events.
type ControlHandler struct {
	deps Dependencies
}

// NewControlHandler creates a new control handler.
func NewControlHandler(deps Dependencies) *ControlHandler {
	return &ControlHandler{deps: deps}
}

// HandleFinished handles POST /clips/finished. A report carrying an event_id
// that was already accepted is acknowledged without reaching the scheduler.
func (h *ControlHandler) HandleFinished(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_finished"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req types.FinishedRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	id := strings.TrimSpace(req.EventID)
	if id != "" && h.deps.SeenAndRecord(r.Context(), id) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	e := model.Event{Kind: model.KindClipFinished, EventID: id, Clip: req.Clip}
	if !h.deps.Enqueue(r.Context(), newEvent(e)) {
		if id != "" {
			h.deps.Unrecord(r.Context(), id)
		}
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// HandleAudio handles POST /audio.
func (h *ControlHandler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_audio"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req types.AudioRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if math.IsNaN(req.Time) || math.IsInf(req.Time, 0) || req.Time < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("time must be a finite non-negative number")))
		return
	}
	e := model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: req.Time, Paused: req.Paused, Ended: req.Ended}}
	h.enqueue(w, r, op, e)
}

// HandleScheduler handles POST /scheduler, the manual enable override.
func (h *ControlHandler) HandleScheduler(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_scheduler"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req types.SchedulerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	h.enqueue(w, r, op, model.Event{Kind: model.KindSetEnabled, Enabled: req.Enabled})
}

// HandleScenario handles POST /scenario.
func (h *ControlHandler) HandleScenario(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_scenario"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req types.ScenarioRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if !h.deps.HasScenario(req.Scenario) {
		writeError(w, http.StatusNotFound, "unknown_scenario", WrapKind(op, ErrUnknownScenario, errors.New(req.Scenario)))
		return
	}
	h.enqueue(w, r, op, model.Event{Kind: model.KindScenario, Scenario: req.Scenario, Playing: req.Playing})
}

// HandleGaze handles POST /gaze. A null weight resumes dwell modulation.
func (h *ControlHandler) HandleGaze(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_gaze"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req types.GazeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Weight != nil && (math.IsNaN(*req.Weight) || *req.Weight < 0 || *req.Weight > 1) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("weight must be within [0, 1]")))
		return
	}
	h.enqueue(w, r, op, model.Event{Kind: model.KindGaze, Gaze: req.Weight})
}

func (h *ControlHandler) enqueue(w http.ResponseWriter, r *http.Request, op string, e model.Event) { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	if !h.deps.Enqueue(r.Context(), newEvent(e)) {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}

// decodeOptional accepts an empty body as the zero value.
func decodeOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	if err := decode(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func newEvent(e model.Event) model.Event { //nolint:gocritic // hugeParam: see enqueue
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.TS.IsZero() {
		e.TS = time.Now()
	}
	return e
}
