package command

import (
	"github.com/goliatone/go-broker/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[HelloMessage]              = (*HelloCommand)(nil)
	_ gocmd.Commander[AcquireTokenMessage]       = (*AcquireTokenCommand)(nil)
	_ gocmd.Commander[AcquireTokenSilentMessage] = (*AcquireTokenSilentCommand)(nil)
	_ TokenService                               = (*core.Client)(nil)
)
