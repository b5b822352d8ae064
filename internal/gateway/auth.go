package gateway

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openbid/auctiond/internal/models"
)

// ErrBadCredential is returned for a wrong PIN or control credential.
var ErrBadCredential = errors.New("invalid credential")

// BidderDirectory is what the gateway needs from bidder persistence:
// lookups, the stored PIN hash, and online marking.
type BidderDirectory interface {
	GetBidder(ctx context.Context, id uuid.UUID) (*models.Bidder, error)
	GetCredential(ctx context.Context, id uuid.UUID) (string, error)
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
}

// Authenticator verifies bidder PINs and the control credential.
type Authenticator struct {
	bidders           BidderDirectory
	controlCredential string
}

// NewAuthenticator builds an authenticator. The control credential comes
// from configuration.
func NewAuthenticator(bidders BidderDirectory, controlCredential string) *Authenticator {
	return &Authenticator{
		bidders:           bidders,
		controlCredential: controlCredential,
	}
}

// AuthenticateBidder checks the PIN against the stored bcrypt hash and
// returns the bidder on success.
func (a *Authenticator) AuthenticateBidder(ctx context.Context, id uuid.UUID, pin string) (*models.Bidder, error) {
	hash, err := a.bidders.GetCredential(ctx, id)
	if err != nil {
		return nil, ErrBadCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return nil, ErrBadCredential
	}
	return a.bidders.GetBidder(ctx, id)
}

// AuthenticateControl checks the shared control credential.
func (a *Authenticator) AuthenticateControl(credential string) bool {
	if a.controlCredential == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(a.controlCredential)) == 1
}
