// Package relay implements the server side of the signaling exchange: the
// room server that assigns roles and stores the initiator's offer, and the
// WebSocket relay that forwards messages between the two clients of a room.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

const maxBodySize = 64 * 1024

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options configures a Server.
type Options struct {
	// RelayHost is the host[:port] clients are told to open the WebSocket
	// on. Empty means the host the join request was sent to.
	RelayHost string
	RelayTLS  bool
}

// Server serves the room server and the relay from one HTTP listener.
type Server struct {
	opts  Options
	rooms *Rooms
	hub   *Hub

	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server with empty room and relay state.
func NewServer(opts Options) *Server {
	return &Server{
		opts:  opts,
		rooms: NewRooms(),
		hub:   NewHub(),
	}
}

// Router returns the HTTP routes:
//
//	POST /join/{room}        join a room, learn role and saved messages
//	POST /wssmessage?r=&u=   save a message for the next joiner, or leave on bye
//	GET  /ws                 relay WebSocket (register, send)
//	POST /{room}/{client}    relay one form-encoded msg to the other client
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)

	r.Post("/join/{room}", s.handleJoin)
	r.Post("/wssmessage", s.handleRoomMessage)
	r.Get("/ws", s.handleWS)
	r.Post("/{room}/{client}", s.handleRelayPost)
	return r
}

// Start begins listening on addr and serves in the background. Returns the
// bound address, which is useful with port 0.
func (s *Server) Start(addr string) (net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start relay server: %w", err)
	}
	s.listener = listener
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay server stopped: %v", err)
		}
	}()

	util.LogSuccess("relay server listening on %s", listener.Addr())
	return listener.Addr(), nil
}

// Close stops accepting requests, waits for in-flight HTTP requests until ctx
// expires and closes every relay WebSocket.
func (s *Server) Close(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.hub.Close()
	return err
}

// ---------------------------------------------------------------------------
// Room server
// ---------------------------------------------------------------------------

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	clientID, initiator, messages, err := s.rooms.Join(roomID)
	if errors.Is(err, ErrRoomFull) {
		util.LogInfo("room %s is full (%d/%d)", roomID, s.rooms.Occupancy(roomID), maxOccupancy)
		writeJSON(w, http.StatusConflict, map[string]string{"error": "full"})
		return
	}

	host := s.opts.RelayHost
	if host == "" {
		host = r.Host
	}
	if messages == nil {
		messages = []string{}
	}
	writeJSON(w, http.StatusOK, JoinResponse{
		ClientID:    clientID,
		IsInitiator: initiator,
		Messages:    messages,
		WSS:         host,
		WSSTLS:      s.opts.RelayTLS,
	})
}

func (s *Server) handleRoomMessage(w http.ResponseWriter, r *http.Request) {
	roomID, clientID := r.URL.Query().Get("r"), r.URL.Query().Get("u")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if err := s.rooms.Message(roomID, clientID, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ---------------------------------------------------------------------------
// Relay
// ---------------------------------------------------------------------------

func (s *Server) handleRelayPost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	msg := r.FormValue("msg")
	if msg == "" {
		http.Error(w, "missing msg", http.StatusBadRequest)
		return
	}
	util.Stats.AddRecv()

	err := s.hub.Send(chi.URLParam(r, "room"), chi.URLParam(r, "client"), msg)
	switch {
	case errors.Is(err, ErrRoomFull):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var roomID, clientID string
	registered := false
	defer func() {
		if registered {
			s.hub.Deregister(roomID, clientID)
		}
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		util.Stats.AddRecv()

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			s.hub.Reply(conn, "invalid message")
			continue
		}

		switch env.Cmd {
		case protocol.CmdRegister:
			if registered {
				s.hub.Reply(conn, "duplicate register")
				continue
			}
			if env.RoomID == "" || env.ClientID == "" {
				s.hub.Reply(conn, "invalid register request")
				continue
			}
			if err := s.hub.Register(env.RoomID, env.ClientID, conn); err != nil {
				s.hub.Reply(conn, err.Error())
				return
			}
			roomID, clientID, registered = env.RoomID, env.ClientID, true

		case protocol.CmdSend:
			if !registered {
				s.hub.Reply(conn, "client not registered")
				continue
			}
			if err := s.hub.Send(roomID, clientID, env.Msg); err != nil {
				s.hub.Reply(conn, err.Error())
			}

		default:
			s.hub.Reply(conn, fmt.Sprintf("invalid cmd %q", env.Cmd))
		}
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		util.LogWarning("write response: %v", err)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		util.LogDebug("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}
