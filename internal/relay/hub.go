package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

const writeTimeout = 10 * time.Second

var errAlreadyRegistered = errors.New("client already registered")

// peer is one client of a relay room. conn is nil until the client registers
// over the WebSocket; until then it can still post messages, which are held
// in queue for the other client.
type peer struct {
	id    string
	conn  *websocket.Conn
	queue []string
}

type hubRoom struct {
	peers map[string]*peer
}

// Hub relays messages between the two clients of each room.
//
// All room state and every WebSocket write happen under one mutex, so
// messages reach each client in the order they were relayed.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*hubRoom
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*hubRoom)}
}

// peerLocked returns the peer for clientID, adding it to the room if there
// is space.
func (h *Hub) peerLocked(roomID, clientID string) (*peer, *hubRoom, error) {
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &hubRoom{peers: make(map[string]*peer)}
		h.rooms[roomID] = rm
	}
	if p, ok := rm.peers[clientID]; ok {
		return p, rm, nil
	}
	if len(rm.peers) >= maxOccupancy {
		return nil, rm, ErrRoomFull
	}
	p := &peer{id: clientID}
	rm.peers[clientID] = p
	return p, rm, nil
}

// Register binds conn to clientID and flushes whatever the other client
// sent before this one was reachable.
func (h *Hub) Register(roomID, clientID string, conn *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, rm, err := h.peerLocked(roomID, clientID)
	if err != nil {
		h.dropEmptyLocked(roomID, rm)
		return err
	}
	if p.conn != nil {
		return errAlreadyRegistered
	}
	p.conn = conn
	util.LogInfo("client %s registered in room %s", clientID, roomID)

	for _, other := range rm.peers {
		if other == p || len(other.queue) == 0 {
			continue
		}
		queued := other.queue
		other.queue = nil
		util.LogDebug("delivering %d queued message(s) to %s", len(queued), clientID)
		for _, msg := range queued {
			h.deliverLocked(p, msg)
		}
	}
	return nil
}

// Send relays msg from clientID to the other client of the room, or holds it
// until the other client registers.
func (h *Hub) Send(roomID, clientID, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	src, rm, err := h.peerLocked(roomID, clientID)
	if err != nil {
		h.dropEmptyLocked(roomID, rm)
		return err
	}
	for _, dst := range rm.peers {
		if dst != src && dst.conn != nil {
			h.deliverLocked(dst, msg)
			return nil
		}
	}
	src.queue = append(src.queue, msg)
	return nil
}

// Deregister removes clientID from the room. The remaining client, if
// registered, is told the other side hung up.
func (h *Hub) Deregister(roomID, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := rm.peers[clientID]; !ok {
		return
	}
	delete(rm.peers, clientID)
	util.LogInfo("client %s left room %s", clientID, roomID)

	bye, _ := protocol.Encode(protocol.Bye{})
	for _, other := range rm.peers {
		if other.conn != nil {
			h.deliverLocked(other, string(bye))
		}
	}
	h.dropEmptyLocked(roomID, rm)
}

// Reply writes a relay error to conn.
func (h *Hub) Reply(conn *websocket.Conn, reason string) {
	frame, err := protocol.ErrorEnvelope(reason)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := writeFrame(conn, frame); err != nil {
		util.LogDebug("write error reply: %v", err)
	}
}

// Close closes every registered connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, rm := range h.rooms {
		for _, p := range rm.peers {
			if p.conn != nil {
				p.conn.Close()
			}
		}
		delete(h.rooms, id)
	}
}

func (h *Hub) deliverLocked(p *peer, msg string) {
	frame, err := protocol.DeliveryEnvelope(msg)
	if err != nil {
		util.LogError("encode delivery: %v", err)
		return
	}
	if err := writeFrame(p.conn, frame); err != nil {
		util.LogWarning("deliver to %s: %v", p.id, err)
		return
	}
	util.Stats.AddSent()
}

func (h *Hub) dropEmptyLocked(roomID string, rm *hubRoom) {
	if rm != nil && len(rm.peers) == 0 {
		delete(h.rooms, roomID)
	}
}

func writeFrame(conn *websocket.Conn, frame []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
