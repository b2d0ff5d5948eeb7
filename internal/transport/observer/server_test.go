package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelwfc.ai/internal/observerproto"
	"voxelwfc.ai/internal/sim/catalogs"
	"voxelwfc.ai/internal/sim/tuning"
	"voxelwfc.ai/internal/sim/world"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	terr, err := catalogs.LoadTerrain("../../../configs/terrain.json")
	if err != nil {
		t.Fatalf("load terrain: %v", err)
	}
	tn := tuning.Defaults()
	tn.ChunkSize = 4
	tn.WorldMinY = -8
	tn.Engine.EventsPerTick = 1 << 20
	tn.Streaming.Radius = 0
	tn.Streaming.UnloadMargin = 0
	w, err := world.New(world.Config{Tuning: tn, Terrain: terr, RunID: "ws-test"})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	return w
}

func TestWS_SubscribeStreamsChunks(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Center:          [3]int{0, 0, 0},
		Radius:          0,
		Drive:           true,
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello observerproto.HelloMsg
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("hello: %v", err)
	}
	if hello.Type != observerproto.TypeHello || hello.SessionID == "" || hello.WorldParams.ChunkSize != 4 {
		t.Fatalf("hello: %+v", hello)
	}

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for chunk: %v", err)
		}
		var msg observerproto.ChunkMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type != observerproto.TypeChunk {
			continue
		}
		if msg.Key != [3]int{0, 0, 0} || msg.Encoding != observerproto.EncodingStatesRLE || msg.Data == "" {
			t.Fatalf("chunk: %+v", msg)
		}
		return
	}
}

func TestWS_RejectsBadHandshake(t *testing.T) {
	w := startWorld(t)
	srv := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestBootstrapHandler(t *testing.T) {
	w := startWorld(t)
	h := NewServer(w, nil).BootstrapHandler()

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp observerproto.BootstrapResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RunID != "ws-test" || resp.WorldParams.ChunkSize != 4 || len(resp.States) == 0 {
		t.Fatalf("bootstrap: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/observer/bootstrap", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status: got %d want 403", rec.Code)
	}
}

func TestNormalizeSubscribe(t *testing.T) {
	cases := map[int]int{-1: defaultRadius, 0: 0, 3: 3, 99: maxRadius}
	for in, want := range cases {
		sub := observerproto.SubscribeMsg{Radius: in}
		normalizeSubscribe(&sub)
		if sub.Radius != want {
			t.Fatalf("radius %d: got %d want %d", in, sub.Radius, want)
		}
	}
}
