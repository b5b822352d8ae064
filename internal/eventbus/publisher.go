// Package eventbus bridges committed auction events onto NATS JetStream so
// the websocket gateway can run as a separate process. In single-process
// deployments the engine broadcasts straight into the gateway hub instead.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction/events"
)

// PublisherConfig holds JetStream publisher settings.
type PublisherConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	PublishWait   time.Duration
}

// DefaultPublisherConfig returns the stock publisher configuration.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		URL:           nats.DefaultURL,
		StreamName:    "AUCTION_EVENTS",
		SubjectPrefix: "auction",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		PublishWait:   5 * time.Second,
	}
}

// Envelope is the wire format carried on the bus.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher implements auction.Broadcaster by publishing envelopes to
// JetStream. Events for all roles go to <prefix>.events.<type>; control-only
// events go to <prefix>.control.<type>.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config PublisherConfig
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(ctx context.Context, config PublisherConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     config.StreamName,
		Subjects: []string{config.SubjectPrefix + ".>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &Publisher{nc: nc, js: js, config: config}, nil
}

// Broadcast publishes an event for all roles.
func (p *Publisher) Broadcast(evt events.Event) {
	p.publish(fmt.Sprintf("%s.events.%s", p.config.SubjectPrefix, evt.Type), evt)
}

// BroadcastControl publishes a control-only event.
func (p *Publisher) BroadcastControl(evt events.Event) {
	p.publish(fmt.Sprintf("%s.control.%s", p.config.SubjectPrefix, evt.Type), evt)
}

func (p *Publisher) publish(subject string, evt events.Event) {
	envelope := Envelope{
		EventID:   evt.ID,
		EventType: string(evt.Type),
		Timestamp: evt.Timestamp,
		Payload:   evt.Data,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal event envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishWait)
	defer cancel()

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("event_type", string(evt.Type)).
			Msg("failed to publish event")
	}
}

// Close shuts the NATS connection down.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
