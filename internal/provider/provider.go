package provider

import (
	"context"
	"net/http"
)

// Provider is the telephony carrier the router answers webhooks from
// and issues call commands to.
type Provider interface {
	// ValidateSignature verifies that a webhook request was signed by
	// the carrier. Implementations must return false for requests with
	// a missing or invalid signature.
	ValidateSignature(r *http.Request, params map[string]string) bool

	// RedirectCall points an in-progress call at a new instruction URL.
	// Used to pull a queued caller to an agent once one frees up.
	RedirectCall(ctx context.Context, callID, url string) error
}
