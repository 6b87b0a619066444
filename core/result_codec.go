package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type successPayload struct {
	Success              bool            `json:"success"`
	AccessToken          string          `json:"access_token"`
	IDToken              string          `json:"id_token,omitempty"`
	RefreshToken         string          `json:"refresh_token,omitempty"`
	HomeAccountID        string          `json:"home_account_id"`
	LocalAccountID       string          `json:"local_account_id"`
	Username             string          `json:"username"`
	ClientInfo           string          `json:"client_info,omitempty"`
	TokenType            string          `json:"token_type"`
	ClientID             string          `json:"client_id"`
	Scope                string          `json:"scopes"`
	Authority            string          `json:"authority"`
	Environment          string          `json:"environment"`
	TenantID             string          `json:"tenant_id"`
	ExpiresOn            string          `json:"expires_on"`
	ExtendedExpiresOn    string          `json:"ext_expires_on"`
	CachedAt             string          `json:"cached_at"`
	FamilyID             string          `json:"family_id,omitempty"`
	SpeRing              string          `json:"spe_ring,omitempty"`
	RefreshTokenAge      string          `json:"refresh_token_age,omitempty"`
	TenantProfileRecords json.RawMessage `json:"tenant_profile_cache_records"`
}

// ResultCodec turns authentication results and errors into envelopes and back.
type ResultCodec struct {
	mapper ErrorMapper
}

func NewResultCodec(mapper ErrorMapper) ResultCodec {
	return ResultCodec{mapper: mapper}
}

func (c ResultCodec) Mapper() ErrorMapper {
	return c.mapper
}

func (c ResultCodec) EncodeSuccess(result AuthenticationResult) (Envelope, error) {
	if len(result.TenantProfiles) == 0 {
		return nil, invalidArgumentError("encodeSuccess", "authentication result has no tenant profile records")
	}
	records, err := encodeRecordArray(result.TenantProfiles)
	if err != nil {
		return nil, err
	}
	payload := successPayload{
		Success:              true,
		AccessToken:          result.AccessToken,
		IDToken:              result.IDToken,
		RefreshToken:         result.RefreshToken,
		HomeAccountID:        result.HomeAccountID,
		LocalAccountID:       result.LocalAccountID,
		Username:             result.Username,
		ClientInfo:           result.ClientInfo,
		TokenType:            result.TokenType,
		ClientID:             result.ClientID,
		Scope:                result.Scope,
		Authority:            result.Authority,
		Environment:          result.Environment,
		TenantID:             result.TenantID,
		ExpiresOn:            strconv.FormatInt(result.ExpiresOn, 10),
		ExtendedExpiresOn:    strconv.FormatInt(result.ExtendedExpiresOn, 10),
		CachedAt:             strconv.FormatInt(result.CachedAt, 10),
		FamilyID:             result.FamilyID,
		SpeRing:              result.SpeRing,
		RefreshTokenAge:      result.RefreshTokenAge,
		TenantProfileRecords: records,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode success payload: %w", err)
	}
	return Envelope{
		KeyRequestSuccess: true,
		KeyResult:         string(raw),
	}, nil
}

func (c ResultCodec) DecodeSuccess(envelope Envelope) (AuthenticationResult, error) {
	raw, payloadErr := resultPayload(envelope)
	if payloadErr != nil {
		return AuthenticationResult{}, payloadErr
	}
	if success, ok := envelope.Bool(KeyRequestSuccess); ok && !success {
		return AuthenticationResult{}, decodeError(ErrorCodeDecodeFailed, "envelope carries an error payload", nil)
	}

	payload := successPayload{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return AuthenticationResult{}, decodeError(ErrorCodeDecodeFailed, "success payload is not valid JSON", err)
	}
	if len(payload.TenantProfileRecords) == 0 {
		return AuthenticationResult{}, decodeError(ErrorCodeDecodeFailed, "success payload has no tenant profile records", nil)
	}
	records, err := decodeRecordArray(payload.TenantProfileRecords)
	if err != nil {
		return AuthenticationResult{}, err
	}
	if len(records) == 0 {
		return AuthenticationResult{}, decodeError(ErrorCodeDecodeFailed, "success payload has no tenant profile records", nil)
	}

	expiresOn, err := parseEpochSeconds("expires_on", payload.ExpiresOn)
	if err != nil {
		return AuthenticationResult{}, err
	}
	extendedExpiresOn, err := parseEpochSeconds("ext_expires_on", payload.ExtendedExpiresOn)
	if err != nil {
		return AuthenticationResult{}, err
	}
	cachedAt, err := parseEpochSeconds("cached_at", payload.CachedAt)
	if err != nil {
		return AuthenticationResult{}, err
	}

	return AuthenticationResult{
		AccessToken:       payload.AccessToken,
		IDToken:           payload.IDToken,
		RefreshToken:      payload.RefreshToken,
		HomeAccountID:     payload.HomeAccountID,
		LocalAccountID:    payload.LocalAccountID,
		Username:          payload.Username,
		ClientInfo:        payload.ClientInfo,
		TokenType:         payload.TokenType,
		ClientID:          payload.ClientID,
		Scope:             payload.Scope,
		Authority:         payload.Authority,
		Environment:       payload.Environment,
		TenantID:          payload.TenantID,
		CachedAt:          cachedAt,
		ExpiresOn:         expiresOn,
		ExtendedExpiresOn: extendedExpiresOn,
		FamilyID:          payload.FamilyID,
		SpeRing:           payload.SpeRing,
		RefreshTokenAge:   payload.RefreshTokenAge,
		TenantProfiles:    records,
	}, nil
}

func (c ResultCodec) EncodeFailure(err error) (Envelope, error) {
	envelope := c.mapper.ToEnvelope(err)
	envelope.Success = false
	raw, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		return nil, fmt.Errorf("core: encode error payload: %w", marshalErr)
	}
	return Envelope{
		KeyRequestSuccess: false,
		KeyResult:         string(raw),
	}, nil
}

// DecodeToError returns the typed error carried by a failure envelope.
func (c ResultCodec) DecodeToError(envelope Envelope) BrokerError {
	raw, payloadErr := resultPayload(envelope)
	if payloadErr != nil {
		return payloadErr
	}
	if success, ok := envelope.Bool(KeyRequestSuccess); ok && success {
		return decodeError(ErrorCodeDecodeFailed, "envelope carries a success payload", nil)
	}
	payload := ErrorEnvelope{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return decodeError(ErrorCodeDecodeFailed, "error payload is not valid JSON", err)
	}
	return c.mapper.FromEnvelope(payload)
}

// DecodeResponse dispatches on the success flag.
func (c ResultCodec) DecodeResponse(envelope Envelope) (AuthenticationResult, error) {
	if _, payloadErr := resultPayload(envelope); payloadErr != nil {
		return AuthenticationResult{}, payloadErr
	}
	success, ok := envelope.Bool(KeyRequestSuccess)
	if !ok {
		return AuthenticationResult{}, decodeError(ErrorCodeDecodeFailed, "envelope is missing "+KeyRequestSuccess, nil)
	}
	if success {
		return c.DecodeSuccess(envelope)
	}
	return AuthenticationResult{}, c.DecodeToError(envelope)
}

func (c ResultCodec) EncodeDeviceMode(shared bool) Envelope {
	return Envelope{KeyDeviceMode: shared}
}

func (c ResultCodec) DecodeDeviceMode(envelope Envelope) bool {
	shared, _ := envelope.Bool(KeyDeviceMode)
	return shared
}

func (c ResultCodec) EncodeAccountList(records []CacheRecord) (Envelope, error) {
	encoded, err := EncodeRecordList(records)
	if err != nil {
		return nil, err
	}
	return Envelope{KeyAccounts: encoded}, nil
}

// DecodeAccountList distinguishes a missing list (NoAccountFound) from an
// explicitly empty one.
func (c ResultCodec) DecodeAccountList(envelope Envelope) ([]CacheRecord, error) {
	if !envelope.Has(KeyAccounts) || envelope[KeyAccounts] == nil {
		return nil, noAccountFoundError()
	}
	raw, ok := envelope.String(KeyAccounts)
	if !ok {
		return nil, decodeError(ErrorCodeDecodeFailed, KeyAccounts+" is not a string", nil)
	}
	return DecodeRecordList(raw)
}

func resultPayload(envelope Envelope) (string, *ClientError) {
	if !envelope.Has(KeyResult) || envelope[KeyResult] == nil {
		return "", decodeError(ErrorCodeNoResultReturned, "broker returned no result", nil)
	}
	raw, ok := envelope.String(KeyResult)
	if !ok {
		return "", decodeError(ErrorCodeDecodeFailed, KeyResult+" is not a JSON string", nil)
	}
	if strings.TrimSpace(raw) == "" {
		return "", decodeError(ErrorCodeNoResultReturned, "broker returned an empty result", nil)
	}
	return raw, nil
}

func parseEpochSeconds(field, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, decodeError(ErrorCodeDecodeFailed, fmt.Sprintf("%s is not an integer: %q", field, value), err)
	}
	return parsed, nil
}

// BuildAuthenticationResult assembles a result from cache records. The first
// record becomes the current tenant profile; an access token record is
// required and its timestamps must be integers.
func BuildAuthenticationResult(records []CacheRecord) (AuthenticationResult, error) {
	if len(records) == 0 {
		return AuthenticationResult{}, invalidArgumentError("buildAuthenticationResult", "no cache records")
	}
	result := AuthenticationResult{TenantProfiles: append([]CacheRecord(nil), records...)}
	var (
		haveAccount bool
		haveAccess  bool
	)
	for _, record := range records {
		switch typed := derefRecord(record).(type) {
		case AccountRecord:
			if haveAccount {
				continue
			}
			haveAccount = true
			result.HomeAccountID = typed.HomeAccountID
			result.LocalAccountID = typed.LocalAccountID
			result.Username = typed.Username
			result.ClientInfo = typed.ClientInfo
			result.Environment = typed.Environment
			result.TenantID = typed.Realm
		case AccessTokenRecord:
			if haveAccess {
				continue
			}
			haveAccess = true
			result.AccessToken = typed.Secret
			result.TokenType = typed.TokenType
			result.ClientID = typed.ClientID
			result.Scope = typed.Target
			result.Authority = typed.Authority
			var err error
			if result.CachedAt, err = parseRecordEpoch("cached_at", typed.CachedAt); err != nil {
				return AuthenticationResult{}, err
			}
			if result.ExpiresOn, err = parseRecordEpoch("expires_on", typed.ExpiresOn); err != nil {
				return AuthenticationResult{}, err
			}
			extended := typed.ExtendedExpiresOn
			if strings.TrimSpace(extended) == "" {
				extended = typed.ExpiresOn
			}
			if result.ExtendedExpiresOn, err = parseRecordEpoch("extended_expires_on", extended); err != nil {
				return AuthenticationResult{}, err
			}
			if result.Environment == "" {
				result.Environment = typed.Environment
			}
			if result.TenantID == "" {
				result.TenantID = typed.Realm
			}
		case RefreshTokenRecord:
			if result.RefreshToken == "" {
				result.RefreshToken = typed.Secret
				result.FamilyID = typed.FamilyID
			}
		case IDTokenRecord:
			if result.IDToken == "" {
				result.IDToken = typed.Secret
			}
		}
	}
	if !haveAccess {
		return AuthenticationResult{}, invalidArgumentError("buildAuthenticationResult", "no access token record")
	}
	if result.HomeAccountID == "" {
		result.HomeAccountID = records[0].Header().HomeAccountID
	}
	return result, nil
}

func parseRecordEpoch(field, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, invalidArgumentError("buildAuthenticationResult", fmt.Sprintf("%s is not an integer: %q", field, value))
	}
	return parsed, nil
}

// derefRecord normalises pointer records to values. Nil pointers become a
// nil record.
func derefRecord(record CacheRecord) CacheRecord {
	switch typed := record.(type) {
	case *AccountRecord:
		if typed == nil {
			return nil
		}
		return *typed
	case *AccessTokenRecord:
		if typed == nil {
			return nil
		}
		return *typed
	case *RefreshTokenRecord:
		if typed == nil {
			return nil
		}
		return *typed
	case *IDTokenRecord:
		if typed == nil {
			return nil
		}
		return *typed
	default:
		return record
	}
}
