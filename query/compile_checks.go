package query

import (
	"github.com/goliatone/go-broker/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[LoadAccountsMessage, []core.CacheRecord] = (*LoadAccountsQuery)(nil)
	_ gocmd.Querier[LoadDeviceModeMessage, bool]             = (*LoadDeviceModeQuery)(nil)
	_ AccountReader                                          = (*core.Client)(nil)
	_ DeviceModeReader                                       = (*core.Client)(nil)
)
