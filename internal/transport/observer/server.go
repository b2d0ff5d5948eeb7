package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelwfc.ai/internal/observerproto"
	"voxelwfc.ai/internal/sim/voxel"
	"voxelwfc.ai/internal/sim/world"
)

const (
	defaultRadius = 2
	maxRadius     = 8

	handshakeTimeout = 5 * time.Second
	idleTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	outboxSize       = 4096
)

// Server streams chunk outcomes to read-only observers over websockets.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// BootstrapHandler serves run and terrain metadata to local tools.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.world.Bootstrap())
	}
}

// WSHandler accepts a SUBSCRIBE handshake and then pumps world messages to
// the client until either side goes away. Later SUBSCRIBE frames move the
// area of interest.
func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
		_, first, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(first)
		if !ok {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		sess := &session{id: uuid.NewString(), conn: conn, out: make(chan []byte, outboxSize)}
		if !s.join(sess, sub) {
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		defer s.leave(sess)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			sess.writePump(ctx)
		}()

		s.readLoop(sess)

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

type session struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
}

func (s *Server) join(sess *session, sub observerproto.SubscribeMsg) bool {
	center, viewer := subscribeTarget(sub)
	select {
	case s.world.ObserverJoin() <- world.ObserverJoinRequest{
		SessionID: sess.id,
		Out:       sess.out,
		Center:    center,
		Radius:    sub.Radius,
		Viewer:    viewer,
		Drive:     sub.Drive,
	}:
	default:
		return false
	}
	s.logf("observer %s joined center=%v radius=%d drive=%v", sess.id, sub.Center, sub.Radius, sub.Drive)
	return true
}

func (s *Server) leave(sess *session) {
	select {
	case s.world.ObserverLeave() <- sess.id:
	default:
		// World loop is stopping.
	}
	s.logf("observer %s left", sess.id)
}

func (s *Server) readLoop(sess *session) {
	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, msg, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			continue
		}
		center, viewer := subscribeTarget(sub)
		select {
		case s.world.ObserverSubscribe() <- world.ObserverSubscribeRequest{
			SessionID: sess.id,
			Center:    center,
			Radius:    sub.Radius,
			Viewer:    viewer,
			Drive:     sub.Drive,
		}:
		default:
			// Dropped under load; the client resends on its next move.
		}
	}
}

func (sess *session) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-sess.out:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sess.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	switch {
	case sub.Radius < 0:
		sub.Radius = defaultRadius
	case sub.Radius > maxRadius:
		sub.Radius = maxRadius
	}
}

func subscribeTarget(sub observerproto.SubscribeMsg) (voxel.ChunkKey, *mgl64.Vec3) {
	center := voxel.ChunkKey{X: sub.Center[0], Y: sub.Center[1], Z: sub.Center[2]}
	if sub.Viewer == nil {
		return center, nil
	}
	v := mgl64.Vec3(*sub.Viewer)
	return center, &v
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = strings.Trim(remoteAddr, "[]")
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
