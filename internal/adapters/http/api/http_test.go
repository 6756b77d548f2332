package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/okian/cadence/internal/adapters/http/api"
	"github.com/okian/cadence/internal/domain/dedupe"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	dedupe.Deduper

	mu        sync.Mutex
	accept    bool
	enqueued  []model.Event
	luck      map[string]float64
	scenarios map[string]bool
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		Deduper:   dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(16)),
		accept:    true,
		luck:      map[string]float64{"Talk1": 0.35, "Idle": 0.2},
		scenarios: map[string]bool{"intro": true, "drugScreen": true},
	}
}

func (m *mockDeps) Enqueue(_ context.Context, e model.Event) bool { //nolint:gocritic // hugeParam: test double
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.accept {
		return false
	}
	m.enqueued = append(m.enqueued, e)
	return true
}

func (m *mockDeps) Stats(context.Context) types.Stats {
	return types.Stats{Scenario: "intro", Playing: true, Category: "X", Luck: m.luck}
}

func (m *mockDeps) Luck(context.Context) map[string]float64 { return m.luck }

func (m *mockDeps) HasScenario(name string) bool { return m.scenarios[name] }

func (m *mockDeps) events() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.enqueued...)
}

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given the API mux", t, func() {
		mux := newMux(newMockDeps())

		Convey("GET /healthz reports ok", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
		})

		Convey("POST /healthz is rejected", func() {
			w := do(mux, http.MethodPost, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(w.Header().Get("Allow"), ShouldEqual, http.MethodGet)
		})

		Convey("GET /metrics serves the custom registry", func() {
			do(mux, http.MethodGet, "/healthz", "")
			w := do(mux, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "cadence_animator_http_requests_total")
		})
	})
}

func TestFinished(t *testing.T) {
	Convey("Given the API mux", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("A finished report is queued", func() {
			w := do(mux, http.MethodPost, "/clips/finished", `{"event_id":"f-1","clip":"Talk1"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			events := deps.events()
			So(events, ShouldHaveLength, 1)
			So(events[0].Kind, ShouldEqual, model.KindClipFinished)
			So(events[0].EventID, ShouldEqual, "f-1")
			So(events[0].Clip, ShouldEqual, "Talk1")

			Convey("and the retry is acknowledged as a duplicate", func() {
				w := do(mux, http.MethodPost, "/clips/finished", `{"event_id":"f-1","clip":"Talk1"}`)
				So(w.Code, ShouldEqual, http.StatusOK)

				var ack map[string]any
				So(json.Unmarshal(w.Body.Bytes(), &ack), ShouldBeNil)
				So(ack["duplicate"], ShouldEqual, true)
				So(deps.events(), ShouldHaveLength, 1)
			})
		})

		Convey("An empty body is a finished report without an id", func() {
			w := do(mux, http.MethodPost, "/clips/finished", "")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.events()[0].EventID, ShouldNotBeEmpty)

			w = do(mux, http.MethodPost, "/clips/finished", "")
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.events(), ShouldHaveLength, 2)
		})

		Convey("Backpressure forgets the id so the host can retry", func() {
			deps.accept = false
			w := do(mux, http.MethodPost, "/clips/finished", `{"event_id":"f-2"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)

			deps.accept = true
			w = do(mux, http.MethodPost, "/clips/finished", `{"event_id":"f-2"}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
		})

		Convey("Malformed JSON is a bad request", func() {
			w := do(mux, http.MethodPost, "/clips/finished", `{"event_id":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, `"code":"bad_request"`)
		})
	})
}

func TestControl(t *testing.T) {
	Convey("Given the API mux", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("POST /audio queues the speech clock", func() {
			w := do(mux, http.MethodPost, "/audio", `{"time":1.25,"paused":true}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			e := deps.events()[0]
			So(e.Kind, ShouldEqual, model.KindAudio)
			So(e.Audio, ShouldResemble, model.AudioState{Time: 1.25, Paused: true})
		})

		Convey("POST /audio rejects a negative time", func() {
			w := do(mux, http.MethodPost, "/audio", `{"time":-1}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.events(), ShouldBeEmpty)
		})

		Convey("POST /scheduler queues the override", func() {
			w := do(mux, http.MethodPost, "/scheduler", `{"enabled":true}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.events()[0].Kind, ShouldEqual, model.KindSetEnabled)
			So(deps.events()[0].Enabled, ShouldBeTrue)
		})

		Convey("POST /scenario accepts known scenarios only", func() {
			w := do(mux, http.MethodPost, "/scenario", `{"scenario":"drugScreen","playing":true}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.events()[0].Scenario, ShouldEqual, "drugScreen")
			So(deps.events()[0].Playing, ShouldBeTrue)

			w = do(mux, http.MethodPost, "/scenario", `{"scenario":"outro"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Body.String(), ShouldContainSubstring, "unknown_scenario")
		})

		Convey("POST /scenario rejects unknown fields", func() {
			w := do(mux, http.MethodPost, "/scenario", `{"scenario":"intro","volume":3}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /gaze sets and clears the manual weight", func() {
			w := do(mux, http.MethodPost, "/gaze", `{"weight":0.6}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(*deps.events()[0].Gaze, ShouldEqual, 0.6)

			w = do(mux, http.MethodPost, "/gaze", `{"weight":null}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.events()[1].Gaze, ShouldBeNil)

			w = do(mux, http.MethodPost, "/gaze", `{"weight":1.5}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET on a command endpoint is rejected", func() {
			w := do(mux, http.MethodGet, "/scheduler", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestStatsAndLuck(t *testing.T) {
	Convey("Given the API mux", t, func() {
		deps := newMockDeps()
		mux := newMux(deps)

		Convey("GET /stats returns the snapshot", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var stats types.Stats
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats.Scenario, ShouldEqual, "intro")
			So(stats.Category, ShouldEqual, "X")
		})

		Convey("GET /luck returns the vector", func() {
			w := do(mux, http.MethodGet, "/luck", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var luck map[string]float64
			So(json.Unmarshal(w.Body.Bytes(), &luck), ShouldBeNil)
			So(luck["Talk1"], ShouldEqual, 0.35)
		})

		Convey("PUT /luck queues a restore", func() {
			w := do(mux, http.MethodPut, "/luck", `{"Talk1":0.9,"Idle":0}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			e := deps.events()[0]
			So(e.Kind, ShouldEqual, model.KindLuck)
			So(e.Luck, ShouldResemble, map[string]float64{"Talk1": 0.9, "Idle": 0})
		})

		Convey("PUT /luck rejects negative luck", func() {
			w := do(mux, http.MethodPut, "/luck", `{"Talk1":-0.5}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.events(), ShouldBeEmpty)
		})

		Convey("PUT /luck rejects luck too large to draw from", func() {
			w := do(mux, http.MethodPut, "/luck", `{"Talk1":1e308,"Talk2":1e308}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.events(), ShouldBeEmpty)
		})

		Convey("DELETE /luck is rejected", func() {
			w := do(mux, http.MethodDelete, "/luck", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}
