// Package stream fans gateway events out to websocket clients: session state changes and the
// progress of every upload.
package stream

import (
	"sync"

	"igstore/apicodes"
	log "igstore/cloudlog"
	"igstore/media"
	"igstore/session"
)

// outboundBuffer bounds events waiting for the hub loop; events beyond it are dropped.
const outboundBuffer = 256

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Inbound requests from the clients.
	inbound chan *Message

	// Events to fan out.
	outbound chan *Message

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed to stop Run.
	done      chan struct{}
	closeOnce sync.Once

	// status gives the snapshot sent to new clients and SESSION requests.
	status func() session.Status
}

// NewHub returns a hub answering session requests with status. Run must be started before
// clients connect.
func NewHub(status func() session.Status) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		inbound:    make(chan *Message),
		outbound:   make(chan *Message, outboundBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		status:     status,
	}
}

// Run listens on all channels until Close is called.
func (h *Hub) Run() {
	log.Print("start event stream")
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				h.removeClient(client)
			}
			log.Print("close event stream")
			return
		case client := <-h.register:
			h.clients[client] = true
			h.sendMessage(client, h.sessionMessage(routeOrigin))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.removeClient(client)
			}
		case message := <-h.inbound:
			h.handleSendMessage(h.processMessage(message), message.client)
		case message := <-h.outbound:
			h.handleSendMessage(message, nil)
		}
	}
}

// Close stops Run and disconnects every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// SessionChanged broadcasts a session transition. It is a session.Orchestrator listener.
func (h *Hub) SessionChanged(status session.Status) {
	h.publish(&Message{
		Endpoint: endpointSession,
		Route:    []string{routeBroadcast},
		Status:   apicodes.StatusOK,
		Session:  &status,
	})
}

// UploadProgress broadcasts an upload snapshot. It is a media.ProgressFunc and never blocks.
func (h *Hub) UploadProgress(e media.Event) {
	status := apicodes.StatusOK
	if e.State == media.Failed {
		status = apicodes.StatusUploadFailed
	}
	h.publish(&Message{
		Endpoint: endpointUpload,
		Route:    []string{routeBroadcast},
		Status:   status,
		Upload:   &e,
	})
}

func (h *Hub) publish(message *Message) {
	select {
	case <-h.done:
	case h.outbound <- message:
	default:
		log.Printf("event stream is full, dropping %s message", message.Endpoint)
	}
}

// processMessage answers a client request.
func (h *Hub) processMessage(message *Message) *Message {
	switch message.Endpoint {
	case endpointSession:
		return h.sessionMessage(routeOrigin)
	}
	return &Message{
		Endpoint: message.Endpoint,
		Route:    []string{routeOrigin},
		Status:   apicodes.StatusEndpointNotValid,
	}
}

func (h *Hub) sessionMessage(route string) *Message {
	status := h.status()
	return &Message{
		Endpoint: endpointSession,
		Route:    []string{route},
		Status:   apicodes.StatusOK,
		Session:  &status,
	}
}

// handleSendMessage determines where to send the message based on message.Route.
func (h *Hub) handleSendMessage(message *Message, origin *Client) {
	if message == nil || len(message.Route) == 0 {
		return
	}
	switch message.Route[0] {
	case routeBroadcast:
		for client := range h.clients {
			h.sendMessage(client, message)
		}
	case routeOrigin:
		h.sendMessage(origin, message)
	}
}

// sendMessage drops clients that are closed or too slow to keep up.
func (h *Hub) sendMessage(client *Client, message *Message) {
	if client == nil || !h.clients[client] {
		return
	}
	if client.IsClosed() {
		h.removeClient(client)
		return
	}
	select {
	case client.send <- message:
	default:
		h.removeClient(client)
	}
}

func (h *Hub) removeClient(client *Client) {
	delete(h.clients, client)
	close(client.send)
}
