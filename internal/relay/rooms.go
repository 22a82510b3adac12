package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/1ureka/rtcsignal/internal/protocol"
	"github.com/1ureka/rtcsignal/internal/util"
)

// ErrRoomFull is returned when a third party tries to join a room.
var ErrRoomFull = errors.New("room is full")

const maxOccupancy = 2

// room is one rendezvous room: up to two users, in join order, and the
// messages the first user left for the second.
type room struct {
	users []string
	saved []string
}

// Rooms is the rendezvous registry. The first user to join a room is the
// initiator; the second receives whatever the initiator saved so far.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewRooms creates an empty registry.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*room)}
}

// Join adds a new user to roomID and returns the user's client ID, whether
// the user is the initiator, and the saved messages for a responder.
func (r *Rooms) Join(roomID string) (clientID string, initiator bool, messages []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{}
		r.rooms[roomID] = rm
	}
	if len(rm.users) >= maxOccupancy {
		return "", false, nil, ErrRoomFull
	}

	clientID = uuid.NewString()
	rm.users = append(rm.users, clientID)
	initiator = len(rm.users) == 1
	if !initiator {
		messages = append([]string{}, rm.saved...)
	}
	util.LogInfo("user %s added to room %s (%d/%d)", clientID, roomID, len(rm.users), maxOccupancy)
	return clientID, initiator, messages, nil
}

// Message handles a message posted to the room server. A bye removes the
// user and drops the saved messages; anything else is saved for the next
// user to join.
func (r *Rooms) Message(roomID, clientID string, body []byte) error {
	msg, err := protocol.Decode(body)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		util.LogWarning("message for unknown room %s", roomID)
		return nil
	}

	if _, isBye := msg.(protocol.Bye); isBye {
		util.LogInfo("received bye from user %s; deleting saved messages", clientID)
		rm.saved = nil
		r.removeUser(roomID, rm, clientID)
		return nil
	}

	rm.saved = append(rm.saved, string(body))
	util.LogDebug("saved %s for room %s", msg.Kind(), roomID)
	return nil
}

// Occupancy reports how many users are in roomID.
func (r *Rooms) Occupancy(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return len(rm.users)
	}
	return 0
}

func (r *Rooms) removeUser(roomID string, rm *room, clientID string) {
	for i, u := range rm.users {
		if u == clientID {
			rm.users = append(rm.users[:i], rm.users[i+1:]...)
			break
		}
	}
	if len(rm.users) == 0 {
		util.LogInfo("deleting room %s", roomID)
		delete(r.rooms, roomID)
	}
}
