package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-broker/core"
)

type AccountReader interface {
	GetAccounts(ctx context.Context, clientID string) ([]core.CacheRecord, error)
}

type DeviceModeReader interface {
	GetDeviceMode(ctx context.Context) (bool, error)
}

type LoadAccountsQuery struct {
	reader AccountReader
}

func NewLoadAccountsQuery(reader AccountReader) *LoadAccountsQuery {
	return &LoadAccountsQuery{reader: reader}
}

func (q *LoadAccountsQuery) Query(ctx context.Context, msg LoadAccountsMessage) ([]core.CacheRecord, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: account reader is required")
	}
	return q.reader.GetAccounts(ctx, strings.TrimSpace(msg.ClientID))
}

type LoadDeviceModeQuery struct {
	reader DeviceModeReader
}

func NewLoadDeviceModeQuery(reader DeviceModeReader) *LoadDeviceModeQuery {
	return &LoadDeviceModeQuery{reader: reader}
}

func (q *LoadDeviceModeQuery) Query(ctx context.Context, _ LoadDeviceModeMessage) (bool, error) {
	if q == nil || q.reader == nil {
		return false, queryDependencyError("query: device mode reader is required")
	}
	return q.reader.GetDeviceMode(ctx)
}
