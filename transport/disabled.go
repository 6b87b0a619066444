package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-broker/core"
	goerrors "github.com/goliatone/go-errors"
)

// DisabledTransport refuses every bind. It stands in for a broker that is
// switched off or a transport kind the build does not support.
type DisabledTransport struct {
	kind   string
	reason string
}

func NewDisabledTransport(kind string, reason string) *DisabledTransport {
	return &DisabledTransport{
		kind:   strings.TrimSpace(strings.ToLower(kind)),
		reason: strings.TrimSpace(reason),
	}
}

func (t *DisabledTransport) Kind() string {
	if t == nil {
		return ""
	}
	return t.kind
}

func (t *DisabledTransport) Bind(context.Context, core.ConnectionListener) error {
	if t == nil {
		return fmt.Errorf("transport: transport is nil")
	}
	message := fmt.Sprintf("transport: %s transport is not configured", t.kind)
	if t.reason != "" {
		message += ": " + t.reason
	}
	return transportError(message, goerrors.CategoryOperation, http.StatusServiceUnavailable, map[string]any{
		"transport_kind": t.kind,
	})
}

var _ core.Transport = (*DisabledTransport)(nil)
