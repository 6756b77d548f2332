// Package ws connects rendering hosts to the animation core.
//
// A host opens /ws, declares its clip library and then streams finished and
// audio reports. The core answers with play commands and one frame of blend
// weights per tick. The Hub is the scheduler's ClipPlayer: Has consults the
// declared library and Play broadcasts a command to every host.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/cadence/internal/domain/dedupe"
	"github.com/okian/cadence/internal/domain/facial"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/scheduler"
	"github.com/okian/cadence/internal/domain/types"
	"github.com/okian/cadence/pkg/logger"
	"github.com/okian/cadence/pkg/metrics"
)

const (
	defaultSendBuffer = 64
	defaultWriteWait  = 5 * time.Second
	defaultPongWait   = 60 * time.Second
	maxMessageBytes   = 64 << 10
)

// Enqueuer hands inbound reports to the avatar loop.
type Enqueuer interface {
	Enqueue(ctx context.Context, e model.Event) bool
}

// Hub tracks connected hosts and the clip library they declared.
type Hub struct {
	queue    Enqueuer
	deduper  dedupe.Deduper
	upgrader websocket.Upgrader
	logger   logger.Logger

	sendBuffer int
	writeWait  time.Duration
	pongWait   time.Duration

	mu       sync.RWMutex
	clients  map[string]*client
	clips    map[string]bool
	lastPlay []byte
	closed   bool
}

var _ scheduler.ClipPlayer = (*Hub)(nil)

// NewHub creates a hub that forwards host reports to queue.
func NewHub(queue Enqueuer, opts ...Option) *Hub {
	h := &Hub{
		queue:      queue,
		sendBuffer: defaultSendBuffer,
		writeWait:  defaultWriteWait,
		pongWait:   defaultPongWait,
		clients:    make(map[string]*client),
		clips:      make(map[string]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("ws")
	}
	if h.deduper == nil {
		h.deduper = dedupe.NewInMemoryDeduper()
	}
	return h
}

// ServeHTTP upgrades the request and serves one host until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn, h.sendBuffer, h.writeWait, h.pongWait*9/10)
	if !h.register(c) {
		c.stop()
		return
	}
	ctx := r.Context()
	h.logger.Info(ctx, "host connected", logger.String("client", c.id))

	defer func() {
		h.unregister(c)
		h.logger.Info(ctx, "host disconnected", logger.String("client", c.id))
	}()

	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn(ctx, "websocket read failed", logger.String("client", c.id), logger.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
		if err := h.dispatch(ctx, data); err != nil {
			h.logger.Warn(ctx, "dropping host message", logger.String("client", c.id), logger.Error(err))
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, data []byte) error {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %w", ErrBadMessage, err)
	}
	metrics.RecordWSMessage("in", env.Type)

	switch env.Type {
	case types.MessageClips:
		if env.Clips == nil {
			return fmt.Errorf("%w: clips message without body", ErrBadMessage)
		}
		names := h.declare(env.Clips.Clips)
		return h.enqueue(ctx, model.Event{Kind: model.KindClipsDeclared, Clips: names})

	case types.MessageFinished:
		var req types.FinishedRequest
		if env.Finished != nil {
			req = *env.Finished
		}
		id := strings.TrimSpace(req.EventID)
		if id != "" && h.deduper.SeenAndRecord(ctx, id) {
			metrics.RecordFinishedDuplicate()
			return nil
		}
		if err := h.enqueue(ctx, model.Event{Kind: model.KindClipFinished, EventID: id, Clip: req.Clip}); err != nil {
			if id != "" {
				h.deduper.Unrecord(ctx, id)
			}
			return err
		}
		return nil

	case types.MessageAudio:
		if env.Audio == nil {
			return fmt.Errorf("%w: audio message without body", ErrBadMessage)
		}
		a := env.Audio
		return h.enqueue(ctx, model.Event{Kind: model.KindAudio, Audio: model.AudioState{Time: a.Time, Paused: a.Paused, Ended: a.Ended}})

	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadMessage, env.Type)
	}
}

func (h *Hub) enqueue(ctx context.Context, e model.Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	e.TS = time.Now()
	if !h.queue.Enqueue(ctx, e) {
		return fmt.Errorf("%w: %s", ErrBackpressure, e.Kind)
	}
	return nil
}

// declare replaces the clip library and returns it sorted.
func (h *Hub) declare(clips []string) []string {
	lib := make(map[string]bool, len(clips))
	for _, name := range clips {
		if name = strings.TrimSpace(name); name != "" {
			lib[name] = true
		}
	}
	names := make([]string, 0, len(lib))
	for name := range lib {
		names = append(names, name)
	}
	sort.Strings(names)

	h.mu.Lock()
	h.clips = lib
	h.mu.Unlock()
	return names
}

// Declare installs a clip library without a connected host.
func (h *Hub) Declare(clips []string) []string { return h.declare(clips) }

// Has reports whether a host declared the clip.
func (h *Hub) Has(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clips[name]
}

// Play broadcasts a play command. Hosts that connect later receive the most
// recent command on connect.
func (h *Hub) Play(_ context.Context, name string, opts scheduler.PlayOptions) error {
	if !h.Has(name) {
		return fmt.Errorf("%w: %s", scheduler.ErrClipNotFound, name)
	}
	data, err := json.Marshal(types.Envelope{
		Type: types.MessagePlay,
		Play: &types.PlayCommand{Clip: name, Loop: opts.Loop, FadeMS: opts.Fade.Milliseconds()},
	})
	if err != nil {
		return fmt.Errorf("encode play: %w", err)
	}

	h.mu.Lock()
	h.lastPlay = data
	h.mu.Unlock()
	h.broadcastControl(types.MessagePlay, data)
	return nil
}

// PublishFrame broadcasts one frame of blend weights. It implements the
// frame sink of the avatar loop.
func (h *Hub) PublishFrame(seq uint64, category string, frame facial.Frame) error {
	if h.Clients() == 0 {
		return nil
	}
	data, err := json.Marshal(types.Envelope{
		Type:  types.MessageFrame,
		Frame: &types.FrameMessage{Seq: seq, Category: category, Weights: frame},
	})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	h.broadcast(types.MessageFrame, data)
	return nil
}

// Clients returns the number of connected hosts.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every host and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	metrics.UpdateWSClients(0)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.id] = c
	count := len(h.clients)
	last := h.lastPlay
	h.mu.Unlock()

	metrics.UpdateWSClients(count)
	if last != nil {
		c.sendControl(last)
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.stop()
		metrics.UpdateWSClients(count)
	}
}

// broadcast fans a frame out to every host, dropping it for hosts that lag.
func (h *Hub) broadcast(msgType string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.send(data) {
			metrics.RecordWSMessage("out", msgType)
		} else {
			metrics.RecordWSMessage("dropped", msgType)
		}
	}
}

// broadcastControl fans a play command out to every host. A host whose
// control buffer is full is disconnected rather than left out of step.
func (h *Hub) broadcastControl(msgType string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.sendControl(data) {
			metrics.RecordWSMessage("out", msgType)
			continue
		}
		metrics.RecordWSMessage("evicted", msgType)
		h.logger.Warn(context.Background(), "host cannot keep up with play commands, disconnecting", logger.String("client", c.id))
	}
}
