package stream

import (
	"igstore/media"
	"igstore/session"
)

const (
	endpointSession = "SESSION"
	endpointUpload  = "UPLOAD_PROGRESS"

	routeBroadcast = "BROADCAST"
	routeOrigin    = "ORIGIN"
)

// Message defines the websocket message between the client app and the gateway.
type Message struct {
	Endpoint string   `json:"endpoint"`
	Route    []string `json:"route,omitempty"`
	Status   string   `json:"status,omitempty"`

	Session *session.Status `json:"session,omitempty"`
	Upload  *media.Event    `json:"upload,omitempty"`

	client *Client
}
