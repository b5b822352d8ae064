package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction"
	"github.com/openbid/auctiond/internal/auction/events"
)

// Engine is the command surface the gateway drives. Implemented by
// *auction.Engine.
type Engine interface {
	PlaceBid(ctx context.Context, bidderID uuid.UUID, amount int64) error
	StartLot(ctx context.Context, lotID uuid.UUID) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	ForceSell(ctx context.Context) error
	UndoSale(ctx context.Context, lotID uuid.UUID) error
	StartAutoRun(ctx context.Context) error
	StopAutoRun(ctx context.Context) error
	AutoRunStatus() auction.AutoRunStatus
	Snapshot(ctx context.Context) (*auction.Snapshot, error)
}

// Command is one inbound client frame.
type Command struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	cmdAuth             = "auth"
	cmdPlaceBid         = "placeBid"
	cmdStartLot         = "startLot"
	cmdPause            = "pause"
	cmdResume           = "resume"
	cmdForceSell        = "forceSell"
	cmdUndoSale         = "undoSale"
	cmdStartAutoRun     = "startAutoRun"
	cmdStopAutoRun      = "stopAutoRun"
	cmdGetAutoRunStatus = "getAutoRunStatus"
	cmdGetSnapshot      = "getSnapshot"
)

// Router dispatches client commands to the engine. Validation and
// authorization failures are reported only to the originating connection.
type Router struct {
	engine  Engine
	auth    *Authenticator
	bidders BidderDirectory
	hub     *Hub
}

// NewRouter builds a command router bound to the hub it replies through.
func NewRouter(engine Engine, auth *Authenticator, bidders BidderDirectory, hub *Hub) *Router {
	return &Router{
		engine:  engine,
		auth:    auth,
		bidders: bidders,
		hub:     hub,
	}
}

// Handle parses and executes one client frame.
func (r *Router) Handle(ctx context.Context, conn *Connection, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		r.reject(conn, "", "malformed command")
		return
	}

	switch cmd.Type {
	case cmdAuth:
		r.handleAuth(ctx, conn, cmd.Data)
	case cmdPlaceBid:
		r.handlePlaceBid(ctx, conn, cmd.Data)
	case cmdStartLot:
		r.handleStartLot(ctx, conn, cmd.Data)
	case cmdPause:
		r.controlCommand(ctx, conn, cmd.Type, r.engine.Pause)
	case cmdResume:
		r.controlCommand(ctx, conn, cmd.Type, r.engine.Resume)
	case cmdForceSell:
		r.controlCommand(ctx, conn, cmd.Type, r.engine.ForceSell)
	case cmdUndoSale:
		r.handleUndoSale(ctx, conn, cmd.Data)
	case cmdStartAutoRun:
		r.controlCommand(ctx, conn, cmd.Type, r.engine.StartAutoRun)
	case cmdStopAutoRun:
		r.controlCommand(ctx, conn, cmd.Type, r.engine.StopAutoRun)
	case cmdGetAutoRunStatus:
		if !r.requireControl(conn, cmd.Type) {
			return
		}
		r.hub.SendTo(conn, events.New(events.TypeAutoRunStatus, r.engine.AutoRunStatus()))
	case cmdGetSnapshot:
		r.handleGetSnapshot(ctx, conn)
	default:
		r.reject(conn, cmd.Type, "unknown command")
	}
}

func (r *Router) handleAuth(ctx context.Context, conn *Connection, data []byte) {
	switch conn.Role {
	case RoleBidder:
		var req struct {
			BidderID uuid.UUID `json:"bidder_id"`
			PIN      string    `json:"pin"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			r.authFailed(conn, "malformed auth request")
			return
		}

		bidder, err := r.auth.AuthenticateBidder(ctx, req.BidderID, req.PIN)
		if err != nil {
			log.Warn().Str("bidder_id", req.BidderID.String()).Msg("bidder auth failed")
			r.authFailed(conn, "invalid credential")
			return
		}

		conn.setAuthenticated(bidder.ID, bidder.DisplayName)
		if err := r.bidders.SetOnline(ctx, bidder.ID, true); err != nil {
			log.Error().Err(err).Str("bidder_id", bidder.ID.String()).Msg("failed to mark bidder online")
		}

		r.hub.SendTo(conn, events.New(events.TypeAuthResult, events.AuthResultPayload{
			OK:       true,
			Role:     string(RoleBidder),
			BidderID: bidder.ID.String(),
		}))
		r.hub.Broadcast(events.New(events.TypeBidderStatus, events.BidderStatusPayload{
			BidderID: bidder.ID,
			Name:     bidder.DisplayName,
			Online:   true,
		}))

	case RoleControl:
		var req struct {
			Credential string `json:"credential"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			r.authFailed(conn, "malformed auth request")
			return
		}
		if !r.auth.AuthenticateControl(req.Credential) {
			log.Warn().Str("connection_id", conn.ID).Msg("control auth failed")
			r.authFailed(conn, "invalid credential")
			return
		}

		conn.setAuthenticated(uuid.Nil, "")
		r.hub.SendTo(conn, events.New(events.TypeAuthResult, events.AuthResultPayload{
			OK:   true,
			Role: string(RoleControl),
		}))

	default:
		// Display connections are public and need no auth.
		r.authFailed(conn, "role does not authenticate")
	}
}

func (r *Router) handlePlaceBid(ctx context.Context, conn *Connection, data []byte) {
	if conn.Role != RoleBidder || !conn.Authenticated() {
		r.hub.SendTo(conn, events.New(events.TypeBidRejected, events.BidRejectedPayload{
			Reason: string(auction.RejectNotAuthenticated),
		}))
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		r.reject(conn, cmdPlaceBid, "malformed bid")
		return
	}

	err := r.engine.PlaceBid(ctx, conn.BidderID(), req.Amount)
	if err == nil {
		return
	}
	if be, ok := auction.AsBidError(err); ok {
		r.hub.SendTo(conn, events.New(events.TypeBidRejected, events.BidRejectedPayload{
			Reason: string(be.Reason),
			Amount: be.Amount,
		}))
		return
	}
	log.Error().Err(err).Str("bidder_id", conn.BidderID().String()).Msg("bid failed")
	r.reject(conn, cmdPlaceBid, "internal error")
}

func (r *Router) handleStartLot(ctx context.Context, conn *Connection, data []byte) {
	if !r.requireControl(conn, cmdStartLot) {
		return
	}

	var req struct {
		LotID uuid.UUID `json:"lot_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		r.reject(conn, cmdStartLot, "malformed request")
		return
	}

	if err := r.engine.StartLot(ctx, req.LotID); err != nil {
		r.reject(conn, cmdStartLot, err.Error())
	}
}

func (r *Router) handleUndoSale(ctx context.Context, conn *Connection, data []byte) {
	if !r.requireControl(conn, cmdUndoSale) {
		return
	}

	var req struct {
		LotID uuid.UUID `json:"lot_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		r.reject(conn, cmdUndoSale, "malformed request")
		return
	}

	if err := r.engine.UndoSale(ctx, req.LotID); err != nil {
		r.reject(conn, cmdUndoSale, err.Error())
	}
}

func (r *Router) handleGetSnapshot(ctx context.Context, conn *Connection) {
	// Control and display may request full state; bidders follow events.
	if conn.Role == RoleBidder {
		r.reject(conn, cmdGetSnapshot, "unauthorized")
		return
	}
	if conn.Role == RoleControl && !conn.Authenticated() {
		r.reject(conn, cmdGetSnapshot, "unauthorized")
		return
	}

	snap, err := r.engine.Snapshot(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to build snapshot")
		r.reject(conn, cmdGetSnapshot, "internal error")
		return
	}
	r.hub.SendTo(conn, events.New(events.TypeSnapshot, snap))
}

// controlCommand runs a no-argument privileged command.
func (r *Router) controlCommand(ctx context.Context, conn *Connection, name string, fn func(context.Context) error) {
	if !r.requireControl(conn, name) {
		return
	}
	if err := fn(ctx); err != nil {
		if errors.Is(err, auction.ErrPresentationLocked) {
			r.reject(conn, name, auction.ErrPresentationLocked.Error())
			return
		}
		r.reject(conn, name, err.Error())
	}
}

// requireControl rejects the command outright unless the connection is an
// authenticated control client. No partial effect.
func (r *Router) requireControl(conn *Connection, command string) bool {
	if conn.Role != RoleControl || !conn.Authenticated() {
		r.reject(conn, command, "unauthorized")
		return false
	}
	return true
}

func (r *Router) reject(conn *Connection, command, reason string) {
	r.hub.SendTo(conn, events.New(events.TypeCommandRejected, events.CommandRejectedPayload{
		Command: command,
		Error:   reason,
	}))
}

func (r *Router) authFailed(conn *Connection, reason string) {
	r.hub.SendTo(conn, events.New(events.TypeAuthResult, events.AuthResultPayload{
		OK:    false,
		Role:  string(conn.Role),
		Error: reason,
	}))
}
