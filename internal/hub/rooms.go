package hub

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"log"
	"sync"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/event"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/pkg/metrics"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]Session // roomID -> userID -> session
}

// Rooms is the broadcast fan-out over two room namespaces:
// "conversation:<id>" joined explicitly by viewers, and "user:<id>" personal
// rooms joined implicitly when a session registers. Within one room,
// delivery order matches the order Broadcast calls were issued.
type Rooms struct {
	shards   [shardCount]*roomBucket
	registry *Registry
}

func NewRooms(registry *Registry) *Rooms {
	r := &Rooms{registry: registry}
	for i := 0; i < shardCount; i++ {
		r.shards[i] = &roomBucket{
			rooms: make(map[string]map[string]Session),
		}
	}
	return r
}

func getShard(roomID string) uint32 {
	if roomID == "" {
		return 0
	}

	h := sha1.Sum([]byte(roomID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

// Join adds a session to a room, replacing any session the same user
// already holds there.
func (r *Rooms) Join(roomID string, s Session) {
	sh := getShard(roomID)
	b := r.shards[sh]
	b.Lock()
	defer b.Unlock()

	room, ok := b.rooms[roomID]
	if !ok {
		room = make(map[string]Session)
		b.rooms[roomID] = room
	}

	room[s.UserID()] = s
	log.Printf("user %s joined room %s (shard %d)", s.UserID(), roomID, sh)
}

// Leave removes a session from a room. Leaving a room the session never
// joined is a no-op.
func (r *Rooms) Leave(roomID string, s Session) {
	sh := getShard(roomID)
	b := r.shards[sh]
	b.Lock()
	defer b.Unlock()

	room, ok := b.rooms[roomID]
	if !ok {
		return
	}
	if current, exists := room[s.UserID()]; exists && current == s {
		delete(room, s.UserID())
	}
	if len(room) == 0 {
		delete(b.rooms, roomID)
	}
}

// LeaveAll removes the session from every room it is a member of, used on
// disconnect.
func (r *Rooms) LeaveAll(s Session) {
	for _, b := range r.shards {
		b.Lock()
		for roomID, room := range b.rooms {
			if current, exists := room[s.UserID()]; exists && current == s {
				delete(room, s.UserID())
				if len(room) == 0 {
					delete(b.rooms, roomID)
				}
			}
		}
		b.Unlock()
	}
}

// Broadcast delivers an event to every live member of a room. Delivery
// misses are expected and never surface as errors.
func (r *Rooms) Broadcast(roomID string, eventName string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("broadcast marshal failed for %s: %v", eventName, err)
		return
	}
	ev := event.WsEvent{Event: eventName, Payload: body}

	sh := getShard(roomID)
	b := r.shards[sh]

	// snapshot members under RLock, deliver without holding it
	b.RLock()
	room, ok := b.rooms[roomID]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return
	}
	sessions := make([]Session, 0, len(room))
	for _, s := range room {
		sessions = append(sessions, s)
	}
	b.RUnlock()

	for _, s := range sessions {
		if s.TrySend(ev) {
			metrics.BroadcastDeliveriesTotal.Inc()
		} else {
			metrics.BroadcastMissesTotal.Inc()
		}
	}
}

// NotifyUser delivers an event to a user's personal room, joined implicitly
// when their session registers, regardless of which conversation rooms they
// are viewing. A registry miss means the user is offline; they will see the
// change on their next fetch.
func (r *Rooms) NotifyUser(userID string, eventName string, payload any) {
	if r.registry.Resolve(userID) == nil {
		metrics.BroadcastMissesTotal.Inc()
		return
	}

	r.Broadcast(event.UserRoom(userID), eventName, payload)
}

// Stats returns a snapshot of all rooms and their members.
func (r *Rooms) Stats() (total int, details []RoomDetail) {
	for _, b := range r.shards {
		b.RLock()
		for roomID, room := range b.rooms {
			members := make([]string, 0, len(room))
			for userID := range room {
				members = append(members, userID)
			}
			details = append(details, RoomDetail{RoomID: roomID, Members: members})
			total++
		}
		b.RUnlock()
	}
	return total, details
}

// RoomDetail is one room's membership snapshot.
type RoomDetail struct {
	RoomID  string
	Members []string
}
