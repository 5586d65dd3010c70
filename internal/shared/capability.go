package shared

import (
	"context"
	"time"
)

// Capability is the grant obtained by presenting the operator passcode. It
// carries the stock room the operator is working in.
type Capability struct {
	Location  Location  `json:"location"`
	GrantedAt time.Time `json:"granted_at"`
}

type capabilityContextKey struct{}

// ContextWithCapability stores the capability in context.
func ContextWithCapability(ctx context.Context, capability Capability) context.Context {
	return context.WithValue(ctx, capabilityContextKey{}, capability)
}

// CapabilityFromContext returns the capability and whether one was granted.
func CapabilityFromContext(ctx context.Context) (Capability, bool) {
	capability, ok := ctx.Value(capabilityContextKey{}).(Capability)
	return capability, ok && capability.Location.Valid()
}
