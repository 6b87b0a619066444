package core

import (
	"context"
	"strings"
	"time"
)

// CacheBackend answers broker requests from a CacheStore. It never talks to
// an identity provider: a missing or expired token is reported as UI required.
type CacheBackend struct {
	store        CacheStore
	sharedDevice bool
	now          func() time.Time
}

type CacheBackendOption func(*CacheBackend)

func WithSharedDevice(shared bool) CacheBackendOption {
	return func(b *CacheBackend) {
		b.sharedDevice = shared
	}
}

func WithClock(now func() time.Time) CacheBackendOption {
	return func(b *CacheBackend) {
		if now != nil {
			b.now = now
		}
	}
}

func NewCacheBackend(store CacheStore, opts ...CacheBackendOption) *CacheBackend {
	backend := &CacheBackend{store: store, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(backend)
		}
	}
	return backend
}

// AcquireToken serves interactive requests that name a known account from
// the cache; anything else needs UI this backend cannot show.
func (b *CacheBackend) AcquireToken(ctx context.Context, req AcquireTokenRequest) (AuthenticationResult, error) {
	if req.HomeAccountID == "" || req.Prompt == PromptLogin || req.Prompt == PromptConsent || req.Prompt == PromptSelectAccount {
		return AuthenticationResult{}, &UIRequiredError{ErrorBase: ErrorBase{
			Code:    ErrorCodeInteractionRequired,
			Message: "interactive sign-in is required",
		}}
	}
	return b.AcquireTokenSilent(ctx, req)
}

func (b *CacheBackend) AcquireTokenSilent(ctx context.Context, req AcquireTokenRequest) (AuthenticationResult, error) {
	records, err := b.store.ListRecordsForAccount(ctx, req.HomeAccountID)
	if err != nil {
		return AuthenticationResult{}, err
	}
	records = filterRecordsForClient(records, req.ClientID)
	if len(records) == 0 {
		return AuthenticationResult{}, noAccountFoundError()
	}
	result, err := BuildAuthenticationResult(records)
	if err != nil {
		return AuthenticationResult{}, err
	}
	if req.ForceRefresh || result.ExpiresOn <= b.now().Unix() {
		return AuthenticationResult{}, &UIRequiredError{ErrorBase: ErrorBase{
			Code:    ErrorCodeInvalidGrant,
			Message: "cached access token is expired",
		}}
	}
	return result, nil
}

// Accounts lists account records. Credentials for other clients are filtered,
// accounts are shared. A cache without accounts yields an empty list.
func (b *CacheBackend) Accounts(ctx context.Context, _ string) ([]CacheRecord, error) {
	records, err := b.store.ListRecordsForAccount(ctx, "")
	if err != nil {
		return nil, err
	}
	accounts := make([]CacheRecord, 0, len(records))
	for _, record := range records {
		if record.Kind() == RecordKindAccount {
			accounts = append(accounts, derefRecord(record))
		}
	}
	return accounts, nil
}

func (b *CacheBackend) DeviceMode(context.Context) (bool, error) {
	return b.sharedDevice, nil
}

func filterRecordsForClient(records []CacheRecord, clientID string) []CacheRecord {
	clientID = strings.TrimSpace(clientID)
	out := make([]CacheRecord, 0, len(records))
	for _, record := range records {
		switch typed := derefRecord(record).(type) {
		case AccessTokenRecord:
			if clientID != "" && typed.ClientID != clientID {
				continue
			}
		case RefreshTokenRecord:
			if clientID != "" && typed.ClientID != clientID && typed.FamilyID == "" {
				continue
			}
		case IDTokenRecord:
			if clientID != "" && typed.ClientID != clientID {
				continue
			}
		}
		out = append(out, derefRecord(record))
	}
	return out
}
