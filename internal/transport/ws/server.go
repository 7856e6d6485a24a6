package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"questsync.dev/internal/protocol"
	"questsync.dev/internal/session"
	"questsync.dev/internal/tuning"
)

type Server struct {
	sess      *session.Handler
	hub       *Hub
	validator *protocol.Validator
	log       *log.Logger
	cfg       tuning.Transport

	upgrader websocket.Upgrader
}

// NewServer serves the quest protocol over websockets. hub must be the
// Publisher the session handler was built with.
func NewServer(sess *session.Handler, hub *Hub, v *protocol.Validator, cfg tuning.Transport, logger *log.Logger) *Server {
	d := tuning.Defaults().Transport
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = d.MaxQueue
	}
	if cfg.ReadTimeoutSeconds <= 0 {
		cfg.ReadTimeoutSeconds = d.ReadTimeoutSeconds
	}
	if cfg.WriteTimeoutSeconds <= 0 {
		cfg.WriteTimeoutSeconds = d.WriteTimeoutSeconds
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		sess:      sess,
		hub:       hub,
		validator: v,
		log:       logger,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// playerID resolves the caller's identity from the query string, then the
// header. An empty result means the connection is anonymous.
func (s *Server) playerID(r *http.Request) string {
	if p := s.cfg.PlayerQueryParam; p != "" {
		if v := strings.TrimSpace(r.URL.Query().Get(p)); v != "" {
			return v
		}
	}
	if h := s.cfg.PlayerHeader; h != "" {
		return strings.TrimSpace(r.Header.Get(h))
	}
	return ""
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		playerID := s.playerID(r)
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if s.cfg.MaxMessageBytes > 0 {
			conn.SetReadLimit(s.cfg.MaxMessageBytes)
		}

		connID := uuid.NewString()
		s.log.Printf("connect conn=%s player=%q remote=%s", connID, playerID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, s.cfg.MaxQueue)
		if playerID != "" {
			s.hub.add(playerID, connID, out)
		}

		readTimeout := time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second
		writeTimeout := time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second
		// Idle players stay connected as long as they answer pings.
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})

		// Writer goroutine. Pings share it so control and data frames never
		// write concurrently.
		go func() {
			ping := time.NewTicker(pingPeriod(readTimeout))
			defer ping.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				case <-ping.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			s.dispatch(ctx, connID, playerID, msg)
		}
		cancel()

		// Cleanup.
		if playerID != "" && s.hub.remove(playerID, connID) == 0 {
			s.sess.Disconnect(playerID)
		}
		s.log.Printf("disconnect conn=%s player=%q", connID, playerID)
	}
}

// dispatch routes one inbound frame. Bad frames are logged and dropped; the
// connection stays open.
func (s *Server) dispatch(ctx context.Context, connID, playerID string, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.log.Printf("drop conn=%s: malformed frame: %v", connID, err)
		return
	}
	if !protocol.IsClientType(base.Type) {
		s.log.Printf("drop conn=%s: unexpected type %q", connID, base.Type)
		return
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		// Not processed, but the client still gets the authoritative snapshot.
		s.log.Printf("ignore conn=%s: protocol_version=%q", connID, base.ProtocolVersion)
		s.resync(ctx, connID, playerID)
		return
	}
	if s.validator != nil {
		if err := s.validator.Validate(base.Type, msg); err != nil {
			s.log.Printf("drop conn=%s type=%s: %v", connID, base.Type, err)
			return
		}
	}

	switch base.Type {
	case protocol.TypeQuestAction:
		var act protocol.QuestActionMsg
		if err := json.Unmarshal(msg, &act); err != nil {
			s.log.Printf("drop conn=%s: %v", connID, err)
			return
		}
		s.sess.HandleAction(ctx, playerID, act.ActionID)
	case protocol.TypeQuestStateRequest:
		s.sess.HandleStateRequest(ctx, playerID)
	case protocol.TypeQuestReset:
		s.sess.HandleReset(ctx, playerID)
	}
}

func (s *Server) resync(ctx context.Context, connID, playerID string) {
	if playerID == "" {
		return
	}
	st, err := s.sess.Peek(ctx, playerID)
	if err != nil {
		s.log.Printf("resync conn=%s player=%s: %v", connID, playerID, err)
	}
	if err := s.hub.Publish(playerID, protocol.NewStateUpdate(st)); err != nil {
		s.log.Printf("resync conn=%s player=%s: %v", connID, playerID, err)
	}
}

// pingPeriod leaves half the read timeout for the pong to arrive.
func pingPeriod(readTimeout time.Duration) time.Duration {
	if p := readTimeout / 2; p > 0 {
		return p
	}
	return time.Second
}
