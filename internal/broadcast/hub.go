package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"

	"github.com/san-kum/orbitsim/internal/sim"
)

// BodyState is one body in a broadcast frame.
type BodyState struct {
	Name   string     `json:"name"`
	Color  string     `json:"color,omitempty"`
	Radius float64    `json:"radius"`
	Pos    [3]float64 `json:"pos"`
	Vel    [3]float64 `json:"vel"`
}

// FrameMessage is the JSON document sent to clients for every render.
type FrameMessage struct {
	Playback     float64     `json:"playback"`
	Time         float64     `json:"time"`
	KinematicsID uint64      `json:"kinematics_id"`
	SpanStart    float64     `json:"span_start"`
	SpanFrames   int         `json:"span_frames"`
	Bodies       []BodyState `json:"bodies"`
	DynamicsHz   float64     `json:"dynamics_hz"`
	KinematicsHz float64     `json:"kinematics_hz"`
	Frames       int         `json:"frames"`
	Capacity     int         `json:"capacity"`
}

func NewFrameMessage(req sim.RenderRequest) FrameMessage {
	f := req.Snapshot.Newest()
	msg := FrameMessage{
		Playback:     req.Playback,
		Time:         f.Time(),
		KinematicsID: f.KinematicsID(),
		SpanStart:    req.Snapshot.StartTime(),
		SpanFrames:   req.Snapshot.Len(),
		Bodies:       make([]BodyState, f.Len()),
		DynamicsHz:   req.Status.DynamicsHz,
		KinematicsHz: req.Status.KinematicsHz,
		Frames:       req.Status.Frames,
		Capacity:     req.Status.Capacity,
	}
	for i, b := range f.Bodies() {
		msg.Bodies[i] = BodyState{
			Name:   b.Appearance.Name,
			Color:  b.Appearance.Color,
			Radius: b.Radius,
			Pos:    b.Position,
			Vel:    b.Velocity,
		}
	}
	return msg
}

// Hub maintains active clients and broadcasts frame messages to all of them.
// It is a sim.Sink: each render is serialized once and fanned out.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	input      chan []byte
	done       chan struct{}
	last       []byte

	connected atomic.Int64
	dropped   atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		input:      make(chan []byte, 16),
		done:       make(chan struct{}),
	}
}

// Render queues the request for broadcast. When the hub is behind, the
// message is dropped rather than blocking the consumer.
func (h *Hub) Render(req sim.RenderRequest) error {
	msg, err := json.Marshal(NewFrameMessage(req))
	if err != nil {
		return err
	}
	select {
	case h.input <- msg:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// Clients is the number of registered clients.
func (h *Hub) Clients() int { return int(h.connected.Load()) }

// Dropped counts messages discarded because the hub or a client was slow.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Run serves registrations and fan-out until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			close(client.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
			h.connected.Store(int64(len(h.clients)))
			if h.last != nil {
				client.send <- h.last
			}
			log.Printf("Client connected (%d total)", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.connected.Store(int64(len(h.clients)))
				log.Printf("Client disconnected (%d total)", len(h.clients))
			}
		case msg := <-h.input:
			h.last = msg
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client: skip this frame, the next one supersedes it.
					h.dropped.Add(1)
				}
			}
		}
	}
}

// join registers a client, reporting false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
