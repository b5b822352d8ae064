package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction/events"
)

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig

	// NATSEnabled switches event delivery to the JetStream consumer. When
	// false the engine broadcasts straight into the hub and no NATS
	// connection is made.
	NATSEnabled bool
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// Service ties the hub, command router and event delivery together. It
// implements auction.Broadcaster so a single-process deployment can hand it
// to the engine directly.
type Service struct {
	hub           *Hub
	router        *Router
	auth          *Authenticator
	bidders       BidderDirectory
	wsHandler     *WebSocketHandler
	eventConsumer *EventConsumer
}

// NewService creates the gateway service and wires the hub callbacks. The
// engine is attached afterwards via BindEngine; in single-process
// deployments the engine itself broadcasts through this service, so it is
// constructed second.
func NewService(config Config, auth *Authenticator, bidders BidderDirectory) (*Service, error) {
	hub := NewHub(config.ConnectionConfig)

	hub.onDisconnect = func(conn *Connection) {
		if conn.Role != RoleBidder || !conn.Authenticated() {
			return
		}
		// Going offline never touches auction state; a standing high bid
		// from this bidder stays live.
		id := conn.BidderID()
		if err := bidders.SetOnline(context.Background(), id, false); err != nil {
			log.Error().Err(err).Str("bidder_id", id.String()).Msg("failed to mark bidder offline")
		}
		hub.Broadcast(events.New(events.TypeBidderStatus, events.BidderStatusPayload{
			BidderID: id,
			Name:     conn.BidderName(),
			Online:   false,
		}))
	}

	s := &Service{
		hub:       hub,
		auth:      auth,
		bidders:   bidders,
		wsHandler: NewWebSocketHandler(hub),
	}

	if config.NATSEnabled {
		consumer, err := NewEventConsumer(hub, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}

	return s, nil
}

// BindEngine attaches the command router. Must be called before Start.
func (s *Service) BindEngine(engine Engine) {
	s.router = NewRouter(engine, s.auth, s.bidders, s.hub)
	s.hub.onMessage = s.router.Handle
}

// Start begins the gateway service. Blocks until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("nats", s.eventConsumer != nil).Msg("starting gateway service")

	go s.hub.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service.
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}

	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// Broadcast implements auction.Broadcaster for single-process deployments.
func (s *Service) Broadcast(evt events.Event) {
	s.hub.Broadcast(evt)
}

// BroadcastControl implements auction.Broadcaster for single-process
// deployments.
func (s *Service) BroadcastControl(evt events.Event) {
	s.hub.BroadcastControl(evt)
}

// Stats returns per-role connection counts.
func (s *Service) Stats() map[string]int {
	return s.hub.Stats()
}
