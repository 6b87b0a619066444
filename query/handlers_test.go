package query

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-broker/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestLoadAccountsQuery_DelegatesToReader(t *testing.T) {
	reader := stubReader{
		accountsFn: func(_ context.Context, clientID string) ([]core.CacheRecord, error) {
			if clientID != "client-1" {
				t.Fatalf("expected trimmed client id, got %q", clientID)
			}
			return []core.CacheRecord{core.AccountRecord{Username: "user@example.com"}}, nil
		},
	}
	records, err := NewLoadAccountsQuery(reader).Query(context.Background(), LoadAccountsMessage{ClientID: " client-1 "})
	if err != nil {
		t.Fatalf("query accounts: %v", err)
	}
	if len(records) != 1 || records[0].Kind() != core.RecordKindAccount {
		t.Fatalf("unexpected records: %#v", records)
	}
}

func TestLoadAccountsQuery_PropagatesNoAccountFound(t *testing.T) {
	notFound := core.NewClientError(core.KindNoAccountFound, core.ErrorCodeNoAccountFound, "no account returned by the broker")
	reader := stubReader{
		accountsFn: func(context.Context, string) ([]core.CacheRecord, error) {
			return nil, notFound
		},
	}
	_, err := NewLoadAccountsQuery(reader).Query(context.Background(), LoadAccountsMessage{ClientID: "client-1"})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected no account found error, got %v", err)
	}
}

func TestLoadDeviceModeQuery_DelegatesToReader(t *testing.T) {
	reader := stubReader{
		deviceModeFn: func(context.Context) (bool, error) { return true, nil },
	}
	shared, err := NewLoadDeviceModeQuery(reader).Query(context.Background(), LoadDeviceModeMessage{})
	if err != nil {
		t.Fatalf("query device mode: %v", err)
	}
	if !shared {
		t.Fatalf("expected shared device mode")
	}
}

func TestLoadAccountsMessage_ValidateReturnsRichError(t *testing.T) {
	err := (LoadAccountsMessage{ClientID: " "}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.BrokerErrorBadInput {
		t.Fatalf("unexpected error %+v", rich)
	}
	if err := (LoadDeviceModeMessage{}).Validate(); err != nil {
		t.Fatalf("expected device mode message to validate, got %v", err)
	}
}

func TestQueries_NilReaderReturnsRichError(t *testing.T) {
	var accounts *LoadAccountsQuery
	_, err := accounts.Query(context.Background(), LoadAccountsMessage{ClientID: "client-1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal go-errors envelope, got %v", err)
	}
	if _, err := NewLoadDeviceModeQuery(nil).Query(context.Background(), LoadDeviceModeMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil reader")
	}
}

type stubReader struct {
	accountsFn   func(context.Context, string) ([]core.CacheRecord, error)
	deviceModeFn func(context.Context) (bool, error)
}

func (s stubReader) GetAccounts(ctx context.Context, clientID string) ([]core.CacheRecord, error) {
	if s.accountsFn == nil {
		return nil, nil
	}
	return s.accountsFn(ctx, clientID)
}

func (s stubReader) GetDeviceMode(ctx context.Context) (bool, error) {
	if s.deviceModeFn == nil {
		return false, nil
	}
	return s.deviceModeFn(ctx)
}
