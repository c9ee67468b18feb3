// Package websocket pushes render events to clients watching a job.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/hylarucoder/animatediff-webui/internal/model"
)

const pingInterval = 30 * time.Second

// StatusSource looks up the current state of a job.
type StatusSource interface {
	Status(id int) (*model.RenderJob, error)
}

// Client is one subscriber of a job.
type Client struct {
	JobID int
	Conn  *websocket.Conn
	Send  chan []byte
}

// BroadcastMessage is a message for every subscriber of JobID.
type BroadcastMessage struct {
	JobID   int
	Message []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	// clients grouped by job ID; owned by Run
	clients map[int]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}
	stopOnce   sync.Once

	source StatusSource
	log    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[int]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Bind sets where job snapshots come from. Call it before Run.
func (h *Hub) Bind(source StatusSource) {
	h.source = source
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
			}
			h.clients = make(map[int]map[*Client]bool)
			return nil

		case client := <-h.register:
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			// Send is still empty; later events queue behind the snapshot
			client.Send <- h.snapshot(client.JobID)
			h.log.Debug().Int("job", client.JobID).Msg("client registered")

		case client := <-h.unregister:
			h.remove(client)
			h.log.Debug().Int("job", client.JobID).Msg("client unregistered")

		case msg := <-h.broadcast:
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
				default:
					// too slow, drop it
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
	}
}

// Register adds a client and queues a snapshot of its job as the first
// message. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Observe forwards a render event to the job's subscribers. It never
// blocks the render.
func (h *Hub) Observe(ev model.RenderEvent) {
	msg := model.WSEventMessage{
		Type:   string(ev.Type),
		JobID:  ev.JobID,
		Phase:  ev.Phase,
		Status: ev.Status,
	}
	if h.source != nil {
		if job, err := h.source.Status(ev.JobID); err == nil {
			msg.Job = job
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to marshal event")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: ev.JobID, Message: data}:
	default:
		h.log.Warn().Int("job", ev.JobID).Str("event", msg.Type).Msg("event dropped, hub is backed up")
	}
}

func (h *Hub) snapshot(jobID int) []byte {
	msg := model.WSEventMessage{Type: model.WSMessageTypeSnapshot, JobID: jobID}
	if h.source != nil {
		if job, err := h.source.Status(jobID); err == nil {
			msg.Status = job.Status
			msg.Job = job
		}
	}
	data, _ := json.Marshal(msg)
	return data
}

// HandleConnection streams events for jobID until the peer goes away or
// the hub stops.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID int) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	if !h.Register(client) {
		return
	}
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}
			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// reads only surface the close; clients send nothing we act on
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Int("job", jobID).Msg("websocket error")
			}
			return
		}
	}
}
