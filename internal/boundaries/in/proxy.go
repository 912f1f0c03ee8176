package in

import (
	"context"
	"net/url"

	"github.com/alcove-sh/alcove/internal/domain"
)

// AddonCaller forwards a single HTTP request to a running addon and returns
// the addon's response verbatim.
type AddonCaller interface {
	// Call issues one request against the addon's internal endpoint. The
	// upstream status code travels back inside CallResult regardless of its
	// value; an error is returned only when the gateway itself fails
	// (unknown addon, addon not running, transport failure).
	Call(ctx context.Context, req CallRequest) (*domain.CallResult, error)
}

// CallRequest is one proxied invocation of an addon endpoint.
type CallRequest struct {
	OwnerID     string
	AddonID     string
	Method      string
	Endpoint    string
	Query       url.Values
	ContentType string
	Payload     []byte
}
