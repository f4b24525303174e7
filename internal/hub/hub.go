package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/event"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/middleware"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/model"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/service"
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

// Hub owns the live-channel side of the messaging subsystem: it upgrades
// and authenticates connections, keeps the session registry and rooms, and
// dispatches inbound wire events into the chat service. Both entry points
// (socket and REST) converge on the same service, so a message sent either
// way produces identical persisted state.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	chat     *service.ChatService

	jwtSecret      string
	allowedOrigins map[string]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewHub(registry *Registry, rooms *Rooms, chat *service.ChatService, jwtSecret string, origins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:       registry,
		rooms:          rooms,
		chat:           chat,
		jwtSecret:      jwtSecret,
		allowedOrigins: make(map[string]bool, len(origins)),
		register:       make(chan *Client, 1024),
		unregister:     make(chan *Client, 1024),
		inbound:        make(chan inboundMessage, 4096), // buffer for burst handling
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, o := range origins {
		h.allowedOrigins[o] = true
	}

	// run manager loop
	go h.run()

	// start worker loop
	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// addClient installs the client as the user's live session and joins its
// personal notification room. A previous session for the same user is
// displaced and closed (last-connection-wins).
func (h *Hub) addClient(c *Client) {
	if prev := h.registry.Register(c); prev != nil {
		h.rooms.LeaveAll(prev)
		prev.Close()
		log.Printf("user %s reconnected, displaced previous session", c.userID)
	}
	h.rooms.Join(event.UserRoom(c.userID), c)
}

func (h *Hub) removeClient(c *Client) {
	h.registry.Unregister(c)
	h.rooms.LeaveAll(c)
	c.Close()
	log.Printf("client %s removed for user %s", c.ID, c.userID)
}

// -----------------------------------------------------------------
// Inbound event dispatch
// -----------------------------------------------------------------

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	// In-flight work is never tied to the connection's lifetime: once a
	// send persists, its broadcasts fire even if the sender drops.
	ctx := context.Background()

	switch ev.Event {
	case event.EventJoinConversation:
		var p event.JoinConversationPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			h.sendError(c, "bad_payload", "malformed join-conversation payload")
			return
		}
		if _, err := h.chat.AuthorizeParticipant(ctx, p.ConversationID, c.userID); err != nil {
			h.sendError(c, "unauthorized", err.Error())
			return
		}
		h.rooms.Join(event.ConversationRoom(p.ConversationID), c)

	case event.EventLeaveConversation:
		var p event.JoinConversationPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			h.sendError(c, "bad_payload", "malformed leave-conversation payload")
			return
		}
		h.rooms.Leave(event.ConversationRoom(p.ConversationID), c)

	case event.EventSendMessage:
		var p event.SendMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			h.sendAckError(c, ev.RequestID, "malformed send-message payload")
			return
		}

		msg, err := h.chat.SendMessage(ctx, service.SendMessageInput{
			ConversationID:  p.ConversationID,
			SenderID:        c.userID,
			ReceiverID:      p.ReceiverID,
			Content:         p.Content,
			ClientMessageID: p.ClientMessageID,
		})
		if err != nil {
			h.sendAckError(c, ev.RequestID, err.Error())
			return
		}
		h.sendAckMessage(c, ev.RequestID, msg)

	case event.EventTypingStart:
		var p event.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		h.chat.TypingStart(p.ConversationID, c.userID)

	case event.EventTypingStop:
		var p event.TypingPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		h.chat.TypingStop(p.ConversationID, c.userID)

	case event.EventMarkRead:
		var p event.MarkReadPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			h.sendAckError(c, ev.RequestID, "malformed mark-read payload")
			return
		}

		count, err := h.chat.MarkConversationRead(ctx, p.ConversationID, c.userID)
		if err != nil {
			h.sendAckError(c, ev.RequestID, err.Error())
			return
		}
		h.sendAckCount(c, ev.RequestID, count)

	default:
		log.Printf("unknown event type: %s", ev.Event)
	}
}

func (h *Hub) sendAckMessage(c *Client, requestID string, msg *model.Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("ack marshal failed: %v", err)
		return
	}
	payload, _ := json.Marshal(event.AckPayload{Success: true, Message: body})
	c.TrySend(event.WsEvent{Event: event.EventAck, RequestID: requestID, Payload: payload})
}

func (h *Hub) sendAckCount(c *Client, requestID string, count int64) {
	payload, _ := json.Marshal(event.AckPayload{Success: true, Count: &count})
	c.TrySend(event.WsEvent{Event: event.EventAck, RequestID: requestID, Payload: payload})
}

func (h *Hub) sendAckError(c *Client, requestID string, message string) {
	payload, _ := json.Marshal(event.AckPayload{Success: false, Error: message})
	c.TrySend(event.WsEvent{Event: event.EventAck, RequestID: requestID, Payload: payload})
}

func (h *Hub) sendError(c *Client, code, message string) {
	payload, _ := json.Marshal(model.ErrorPayload{Code: code, Message: message})
	c.TrySend(event.WsEvent{Event: event.EventError, Payload: payload})
}

// -----------------------------------------------------------------
// Handshake
// -----------------------------------------------------------------

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return h.allowedOrigins[origin]
}

// ServeWS authenticates the handshake and upgrades the connection. An
// invalid or missing token refuses the connection outright; no partial
// session is ever registered.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusUnauthorized)
		return
	}

	userID, err := middleware.UserIDFromToken(token, h.jwtSecret)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	upgrader := websocketUpgrader
	upgrader.CheckOrigin = h.checkOrigin

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	registerClient(userID, conn, h)
}

// Stop shuts the hub down, closing every live session.
func (h *Hub) Stop() {
	h.cancel()

	for _, userID := range h.registry.UserIDs() {
		if s := h.registry.Resolve(userID); s != nil {
			s.Close()
		}
	}

	close(h.inbound)
	h.wg.Wait()
}
