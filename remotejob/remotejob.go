// Package remotejob encapsulates sending domain events to remote services through Pub/Sub.
package remotejob

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	log "igstore/cloudlog"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// maxRequests bounds the publishes awaiting acknowledgement.
const maxRequests = 100

// EventType names a domain event.
type EventType string

const (
	GalleryItemCreated EventType = "gallery_item_created"
	GalleryItemDeleted EventType = "gallery_item_deleted"
	AccountDeleted     EventType = "account_deleted"
)

// Event holds the fields of a domain event message sent through Pub/Sub.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user"`
	ItemID string    `json:"item,omitempty"`
	Path   string    `json:"path,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher sends events to a single topic. A Publisher without a topic drops every event, which
// is how the gateway runs when no topic is configured.
type Publisher struct {
	client   *pubsub.Client
	topic    *pubsub.Topic
	requests *requestPool
}

// NewPublisher connects to topicID in projectID. An empty topicID gives a no-op Publisher.
func NewPublisher(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	if topicID == "" {
		log.Print("no Pub/Sub topic configured, domain events are dropped")
		return &Publisher{}, nil
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		log.Printf("Failed to start pubsub client: %s", err.Error())
		return nil, err
	}
	return NewPublisherFromClient(client, topicID), nil
}

// NewPublisherFromClient publishes to topicID with an existing client. Close closes the client.
func NewPublisherFromClient(client *pubsub.Client, topicID string) *Publisher {
	return &Publisher{
		client:   client,
		topic:    client.Topic(topicID),
		requests: newRequestPool(maxRequests),
	}
}

// Publish sends e without waiting for the acknowledgement. Failures are logged.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || p.topic == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("Error marshalling event %#v, reason: %s", e, err.Error())
		return
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"type": string(e.Type)},
	})
	p.requests.add(e, result)
}

// Close waits for pending publishes and releases the client.
func (p *Publisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.requests.wait()
	p.topic.Stop()
	return p.client.Close()
}

// requestPool waits for publish results so that failures are logged and Close can drain them.
// At most size results are awaited at once; add blocks beyond that.
type requestPool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

func newRequestPool(size int) *requestPool {
	return &requestPool{slots: make(chan struct{}, size)}
}

func (rp *requestPool) add(e Event, result *pubsub.PublishResult) {
	rp.slots <- struct{}{}
	rp.wg.Add(1)
	go func() {
		defer func() {
			<-rp.slots
			rp.wg.Done()
		}()
		if _, err := result.Get(context.Background()); err != nil {
			log.Printf("publishing %s for %s failed: %v", e.Type, e.UserID, err)
		}
	}()
}

func (rp *requestPool) wait() {
	rp.wg.Wait()
}
