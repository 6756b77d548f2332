package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/domain/facial"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/domain/scheduler"
	"github.com/okian/cadence/internal/domain/types"
	logging "github.com/okian/cadence/pkg/logger"
)

type recordingQueue struct {
	mu     sync.Mutex
	events []model.Event
}

func (q *recordingQueue) Enqueue(_ context.Context, e model.Event) bool { //nolint:gocritic // hugeParam: test double
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, e)
	return true
}

func (q *recordingQueue) snapshot() []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Event(nil), q.events...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, env types.Envelope) { //nolint:gocritic // hugeParam: test helper
	t.Helper()
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) types.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env types.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestHub(t *testing.T) {
	Convey("Given a hub behind a test server", t, func() {
		q := &recordingQueue{}
		hub := NewHub(q, WithLogger(logging.Nop()))
		srv := httptest.NewServer(hub)
		defer srv.Close()
		defer hub.Close()

		conn := dial(t, srv)
		defer conn.Close()
		So(eventually(func() bool { return hub.Clients() == 1 }), ShouldBeTrue)

		Convey("A clips message declares the library and re-attaches", func() {
			send(t, conn, types.Envelope{Type: types.MessageClips, Clips: &types.ClipsMessage{Clips: []string{"Talk2", "Idle", " ", "Talk1", "Idle"}}})

			So(eventually(func() bool { return len(q.snapshot()) == 1 }), ShouldBeTrue)
			e := q.snapshot()[0]
			So(e.Kind, ShouldEqual, model.KindClipsDeclared)
			So(e.Clips, ShouldResemble, []string{"Idle", "Talk1", "Talk2"})
			So(hub.Has("Talk1"), ShouldBeTrue)
			So(hub.Has("Wave"), ShouldBeFalse)

			Convey("and Play sends a command to the host", func() {
				err := hub.Play(context.Background(), "Idle", scheduler.PlayOptions{Loop: true, Fade: 250 * time.Millisecond})
				So(err, ShouldBeNil)

				env := read(t, conn)
				So(env.Type, ShouldEqual, types.MessagePlay)
				So(*env.Play, ShouldResemble, types.PlayCommand{Clip: "Idle", Loop: true, FadeMS: 250})
			})

			Convey("and a late host receives the current command", func() {
				So(hub.Play(context.Background(), "Talk2", scheduler.PlayOptions{}), ShouldBeNil)
				_ = read(t, conn)

				late := dial(t, srv)
				defer late.Close()
				env := read(t, late)
				So(env.Play.Clip, ShouldEqual, "Talk2")
			})
		})

		Convey("Play refuses undeclared clips", func() {
			err := hub.Play(context.Background(), "Talk9", scheduler.PlayOptions{})
			So(err, ShouldWrap, scheduler.ErrClipNotFound)
		})

		Convey("Finished reports are forwarded once per event id", func() {
			fin := types.Envelope{Type: types.MessageFinished, Finished: &types.FinishedRequest{EventID: "f-1", Clip: "Talk1"}}
			send(t, conn, fin)
			send(t, conn, fin)
			send(t, conn, types.Envelope{Type: types.MessageFinished})

			So(eventually(func() bool { return len(q.snapshot()) == 2 }), ShouldBeTrue)
			events := q.snapshot()
			So(events[0].Kind, ShouldEqual, model.KindClipFinished)
			So(events[0].EventID, ShouldEqual, "f-1")
			So(events[1].Kind, ShouldEqual, model.KindClipFinished)
			So(events[1].EventID, ShouldNotEqual, "f-1")
		})

		Convey("Audio reports become audio events", func() {
			send(t, conn, types.Envelope{Type: types.MessageAudio, Audio: &types.AudioRequest{Time: 2.5, Ended: true}})
			So(eventually(func() bool { return len(q.snapshot()) == 1 }), ShouldBeTrue)
			So(q.snapshot()[0].Audio, ShouldResemble, model.AudioState{Time: 2.5, Ended: true})
		})

		Convey("Malformed and unknown messages are dropped without closing the socket", func() {
			So(conn.WriteMessage(websocket.TextMessage, []byte("{")), ShouldBeNil)
			send(t, conn, types.Envelope{Type: "dance"})
			send(t, conn, types.Envelope{Type: types.MessageAudio, Audio: &types.AudioRequest{Time: 1}})

			So(eventually(func() bool { return len(q.snapshot()) == 1 }), ShouldBeTrue)
			So(hub.Clients(), ShouldEqual, 1)
		})

		Convey("Frames are broadcast to the host", func() {
			frame := facial.Frame{"eyeBlinkLeft": 0.5, "mouthOpen": 0.25}
			So(hub.PublishFrame(7, "B", frame), ShouldBeNil)

			env := read(t, conn)
			So(env.Type, ShouldEqual, types.MessageFrame)
			So(env.Frame.Seq, ShouldEqual, uint64(7))
			So(env.Frame.Category, ShouldEqual, "B")
			So(env.Frame.Weights["mouthOpen"], ShouldEqual, 0.25)
		})

		Convey("Disconnecting removes the host", func() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			So(eventually(func() bool { return hub.Clients() == 0 }), ShouldBeTrue)
		})
	})
}

func TestDeclareWithoutHost(t *testing.T) {
	Convey("Given a hub with no hosts", t, func() {
		hub := NewHub(&recordingQueue{}, WithLogger(logging.Nop()))

		Convey("Declare still fills the library and Play succeeds", func() {
			So(hub.Declare([]string{"Idle"}), ShouldResemble, []string{"Idle"})
			So(hub.Play(context.Background(), "Idle", scheduler.PlayOptions{Loop: true}), ShouldBeNil)
			So(hub.PublishFrame(1, "X", facial.Frame{}), ShouldBeNil)
		})

		Convey("Envelopes encode with their type tag", func() {
			data, err := json.Marshal(types.Envelope{Type: types.MessagePlay, Play: &types.PlayCommand{Clip: "Idle"}})
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"type":"play"`)
		})
	})
}

func TestPlayWithLaggingHost(t *testing.T) {
	Convey("Given a host whose frame buffer is full", t, func() {
		hub := NewHub(&recordingQueue{}, WithLogger(logging.Nop()))
		hub.Declare([]string{"Idle", "Talk1", "Talk2"})

		slow := &client{
			id:     "slow",
			sendCh: make(chan []byte, 2),
			ctrlCh: make(chan []byte, 1),
			done:   make(chan struct{}),
		}
		hub.mu.Lock()
		hub.clients[slow.id] = slow
		hub.mu.Unlock()

		for seq := uint64(1); seq <= 3; seq++ {
			So(hub.PublishFrame(seq, "X", facial.Frame{"mouthOpen": 0}), ShouldBeNil)
		}
		So(len(slow.sendCh), ShouldEqual, 2)

		Convey("A play command still reaches the host ahead of the frames", func() {
			So(hub.Play(context.Background(), "Talk1", scheduler.PlayOptions{}), ShouldBeNil)
			So(len(slow.ctrlCh), ShouldEqual, 1)

			var env types.Envelope
			So(json.Unmarshal(<-slow.ctrlCh, &env), ShouldBeNil)
			So(env.Type, ShouldEqual, types.MessagePlay)
			So(env.Play.Clip, ShouldEqual, "Talk1")
			So(slow.stopped(), ShouldBeFalse)
		})

		Convey("A host that cannot take another play command is disconnected", func() {
			So(hub.Play(context.Background(), "Talk1", scheduler.PlayOptions{}), ShouldBeNil)
			So(hub.Play(context.Background(), "Talk2", scheduler.PlayOptions{}), ShouldBeNil)

			So(slow.stopped(), ShouldBeTrue)
			So(slow.send([]byte("{}")), ShouldBeFalse)
		})
	})
}
