package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"project-review-server/models"
)

// Event types pushed to connected clients
const (
	EventProjectSubmitted   = "project_submitted"
	EventProjectResubmitted = "project_resubmitted"
	EventProjectReviewed    = "project_reviewed"
	EventFeedbackAdded      = "feedback_added"
	EventPong               = "pong"
)

// Client represents a connected WebSocket client
type Client struct {
	Hub     *Hub
	UserID  uint
	IsAdmin bool
	Conn    *websocket.Conn
	Send    chan []byte
}

// Hub tracks connected users and pushes workflow events to them. A user may hold several connections.
type Hub struct {
	clients map[uint]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// Message handlers keyed by incoming message type
	MessageHandlers map[string]MessageHandler

	allowedOrigins map[string]bool
	quit           chan struct{}
	stopOnce       sync.Once
	mu             sync.RWMutex
}

// Message is the envelope for every frame sent to a client
type Message struct {
	Type      string      `json:"type"`
	ProjectID uint        `json:"projectId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// MessageHandler handles a message received from a client
type MessageHandler func(*Client, *Message) error

// NewHub creates a hub that accepts upgrades from the given browser origins.
// Requests without an Origin header are always accepted.
func NewHub(allowedOrigins ...string) *Hub {
	hub := &Hub{
		clients:         make(map[uint]map[*Client]bool),
		Register:        make(chan *Client),
		Unregister:      make(chan *Client),
		MessageHandlers: make(map[string]MessageHandler),
		allowedOrigins:  make(map[string]bool, len(allowedOrigins)),
		quit:            make(chan struct{}),
	}
	for _, origin := range allowedOrigins {
		hub.allowedOrigins[origin] = true
	}
	hub.MessageHandlers["ping"] = hub.handlePing
	return hub
}

// Run starts the hub's main loop and returns after Stop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			log.Printf("🔌 Client registered: user=%d admin=%v", client.UserID, client.IsAdmin)

		case client := <-h.Unregister:
			h.mu.Lock()
			if conns, ok := h.clients[client.UserID]; ok && conns[client] {
				delete(conns, client)
				close(client.Send)
				if len(conns) == 0 {
					delete(h.clients, client.UserID)
				}
			}
			h.mu.Unlock()
			log.Printf("🔌 Client unregistered: user=%d", client.UserID)

		case <-h.quit:
			h.mu.Lock()
			for userID, conns := range h.clients {
				for client := range conns {
					close(client.Send)
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every client connection and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// SendToUser delivers a message to every connection of a user. Full buffers drop the message.
func (h *Hub) SendToUser(userID uint, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		h.deliver(client, data)
	}
}

// SendToAdmins delivers a message to every connected admin
func (h *Hub) SendToAdmins(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("❌ Error marshaling message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.clients {
		for client := range conns {
			if client.IsAdmin {
				h.deliver(client, data)
			}
		}
	}
}

// deliver must be called with h.mu held
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		log.Printf("⚠️ User %d's send buffer is full, dropping message", client.UserID)
	}
}

// IsUserConnected checks if a user has at least one open connection
func (h *Hub) IsUserConnected(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetConnectedUsers returns the ids of users with open connections
func (h *Hub) GetConnectedUsers() []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]uint, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

func (h *Hub) originAllowed(origin string) bool {
	return origin == "" || h.allowedOrigins[origin]
}

func (h *Hub) handlePing(client *Client, _ *Message) error {
	return client.SendMessage(&Message{Type: EventPong, Timestamp: time.Now()})
}

// ProjectSubmitted tells connected admins a new project is waiting for review
func (h *Hub) ProjectSubmitted(project *models.Project) {
	h.SendToAdmins(&Message{
		Type:      EventProjectSubmitted,
		ProjectID: project.ID,
		Timestamp: time.Now(),
		Data: payload{
			"title":   project.Title,
			"ownerId": project.OwnerID,
			"version": project.Version,
		},
	})
}

// ProjectResubmitted tells connected admins an updated version is waiting for review
func (h *Hub) ProjectResubmitted(project *models.Project) {
	h.SendToAdmins(&Message{
		Type:      EventProjectResubmitted,
		ProjectID: project.ID,
		Timestamp: time.Now(),
		Data: payload{
			"title":   project.Title,
			"ownerId": project.OwnerID,
			"version": project.Version,
		},
	})
}

// ProjectReviewed tells the owner about the admin's decision
func (h *Hub) ProjectReviewed(project *models.Project, fb *models.Feedback) {
	h.SendToUser(project.OwnerID, &Message{
		Type:      EventProjectReviewed,
		ProjectID: project.ID,
		Timestamp: time.Now(),
		Data: payload{
			"status":        project.Status,
			"adminFeedback": project.AdminFeedback,
			"rating":        fb.Rating,
			"averageRating": project.AverageRating,
			"ratingCount":   project.RatingCount,
		},
	})
}

// FeedbackAdded forwards a comment to the other side of the conversation
func (h *Hub) FeedbackAdded(project *models.Project, fb *models.Feedback) {
	message := &Message{
		Type:      EventFeedbackAdded,
		ProjectID: project.ID,
		Timestamp: time.Now(),
		Data: payload{
			"feedbackId":      fb.ID,
			"authorId":        fb.AuthorID,
			"content":         fb.Content,
			"isAdminFeedback": fb.IsAdminFeedback,
		},
	}
	if fb.AuthorID == project.OwnerID {
		h.SendToAdmins(message)
		return
	}
	h.SendToUser(project.OwnerID, message)
}

type payload = map[string]interface{}
