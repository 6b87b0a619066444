package query

import (
	"strings"
)

const (
	TypeLoadAccounts   = "broker.query.accounts.load"
	TypeLoadDeviceMode = "broker.query.device_mode.load"
)

// LoadAccountsMessage lists the accounts the broker knows for a client.
type LoadAccountsMessage struct {
	ClientID string
}

func (LoadAccountsMessage) Type() string { return TypeLoadAccounts }

func (m LoadAccountsMessage) Validate() error {
	if strings.TrimSpace(m.ClientID) == "" {
		return queryValidationError("client_id", "client id is required")
	}
	return nil
}

type LoadDeviceModeMessage struct{}

func (LoadDeviceModeMessage) Type() string { return TypeLoadDeviceMode }

func (LoadDeviceModeMessage) Validate() error { return nil }
