package core

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestResultCodec_SuccessRoundTrip(t *testing.T) {
	codec := NewResultCodec(ErrorMapper{})
	input := sampleResult()

	envelope, err := codec.EncodeSuccess(input)
	if err != nil {
		t.Fatalf("encode success: %v", err)
	}
	if success, ok := envelope.Bool(KeyRequestSuccess); !ok || !success {
		t.Fatalf("expected success flag on envelope")
	}

	decoded, err := codec.DecodeSuccess(envelope)
	if err != nil {
		t.Fatalf("decode success: %v", err)
	}
	if !reflect.DeepEqual(decoded, input) {
		t.Fatalf("round trip mismatch\nwant %+v\ngot  %+v", input, decoded)
	}
	current, ok := decoded.CurrentTenantProfile()
	if !ok || current.Kind() != RecordKindAccount {
		t.Fatalf("expected first record to be the current tenant profile, got %v", current)
	}
}

func TestResultCodec_EncodesTimestampsAsDecimalStrings(t *testing.T) {
	envelope, err := NewResultCodec(ErrorMapper{}).EncodeSuccess(sampleResult())
	if err != nil {
		t.Fatalf("encode success: %v", err)
	}
	raw, _ := envelope.String(KeyResult)
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("payload json: %v", err)
	}
	if payload["expires_on"] != "1700003600" || payload["cached_at"] != "1700000000" || payload["ext_expires_on"] != "1700007200" {
		t.Fatalf("expected decimal string timestamps, got %v %v %v", payload["expires_on"], payload["cached_at"], payload["ext_expires_on"])
	}
	if payload["success"] != true {
		t.Fatalf("expected success=true in payload")
	}
}

func TestResultCodec_DecodeSuccessRejectsEmptyTenantProfiles(t *testing.T) {
	codec := NewResultCodec(ErrorMapper{})
	for _, records := range []string{`[]`, `null`} {
		envelope := Envelope{
			KeyRequestSuccess: true,
			KeyResult:         `{"success":true,"access_token":"a","expires_on":"1","ext_expires_on":"1","cached_at":"1","tenant_profile_cache_records":` + records + `}`,
		}
		_, err := codec.DecodeSuccess(envelope)
		if !IsKind(err, KindDecodeFailure) {
			t.Fatalf("records %s: expected decode failure, got %v", records, err)
		}
	}
}

func TestResultCodec_DecodeSuccessRejectsNonIntegerTimestamps(t *testing.T) {
	codec := NewResultCodec(ErrorMapper{})
	envelope, err := codec.EncodeSuccess(sampleResult())
	if err != nil {
		t.Fatalf("encode success: %v", err)
	}
	raw, _ := envelope.String(KeyResult)
	for _, replacement := range []string{`"expires_on":"soon"`, `"expires_on":""`, `"expires_on":"12.5"`} {
		broken := strings.Replace(raw, `"expires_on":"1700003600"`, replacement, 1)
		_, err := codec.DecodeSuccess(Envelope{KeyRequestSuccess: true, KeyResult: broken})
		if !IsKind(err, KindDecodeFailure) {
			t.Fatalf("%s: expected decode failure, got %v", replacement, err)
		}
	}
}

func TestResultCodec_AbsentPayloadIsNoResult(t *testing.T) {
	codec := NewResultCodec(ErrorMapper{})
	_, err := codec.DecodeSuccess(Envelope{KeyRequestSuccess: true})
	if !IsNoResult(err) {
		t.Fatalf("expected no result error, got %v", err)
	}
	_, err = codec.DecodeResponse(Envelope{})
	if !IsNoResult(err) {
		t.Fatalf("expected no result error from decode response, got %v", err)
	}
	if err := codec.DecodeToError(Envelope{KeyRequestSuccess: false}); !IsNoResult(err) {
		t.Fatalf("expected no result error from decode to error, got %v", err)
	}
}

func TestResultCodec_EncodeSuccessRequiresTenantProfiles(t *testing.T) {
	result := sampleResult()
	result.TenantProfiles = nil
	_, err := NewResultCodec(ErrorMapper{}).EncodeSuccess(result)
	if !IsKind(err, KindInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestResultCodec_FailureRoundTrip(t *testing.T) {
	codec := NewResultCodec(ErrorMapper{})
	input := &UIRequiredError{
		ErrorBase: ErrorBase{
			Code:        ErrorCodeInteractionRequired,
			Message:     "sign in again",
			Diagnostics: Diagnostics{CorrelationID: "corr-9", SpeRing: "ring"},
		},
		OAuthSubError: "basic_action",
	}
	envelope, err := codec.EncodeFailure(input)
	if err != nil {
		t.Fatalf("encode failure: %v", err)
	}
	if success, ok := envelope.Bool(KeyRequestSuccess); !ok || success {
		t.Fatalf("expected success=false")
	}

	_, err = codec.DecodeResponse(envelope)
	uiErr, ok := err.(*UIRequiredError)
	if !ok {
		t.Fatalf("expected ui required error, got %T %v", err, err)
	}
	if uiErr.Message != "sign in again" || uiErr.OAuthSubError != "basic_action" || uiErr.CorrelationID != "corr-9" {
		t.Fatalf("unexpected decoded error %+v", uiErr)
	}
}

func TestResultCodec_DecodeToErrorRejectsMalformedPayload(t *testing.T) {
	err := NewResultCodec(ErrorMapper{}).DecodeToError(Envelope{KeyRequestSuccess: false, KeyResult: "{"})
	if err.Kind() != KindDecodeFailure {
		t.Fatalf("expected decode failure, got %s", err.Kind())
	}
}

func TestResultCodec_DeviceMode(t *testing.T) {
	codec := NewResultCodec(ErrorMapper{})
	if !codec.DecodeDeviceMode(codec.EncodeDeviceMode(true)) {
		t.Fatalf("expected shared device mode")
	}
	if codec.DecodeDeviceMode(codec.EncodeDeviceMode(false)) {
		t.Fatalf("expected non shared device mode")
	}
	if codec.DecodeDeviceMode(Envelope{}) {
		t.Fatalf("expected missing key to mean not shared")
	}
}

func TestResultCodec_AccountListAbsentVersusEmpty(t *testing.T) {
	codec := NewResultCodec(ErrorMapper{})

	_, err := codec.DecodeAccountList(Envelope{})
	if !IsKind(err, KindNoAccountFound) {
		t.Fatalf("expected no account found, got %v", err)
	}

	records, err := codec.DecodeAccountList(Envelope{KeyAccounts: "[]"})
	if err != nil {
		t.Fatalf("expected empty list to decode, got %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", records)
	}

	envelope, err := codec.EncodeAccountList(nil)
	if err != nil {
		t.Fatalf("encode empty list: %v", err)
	}
	if raw, _ := envelope.String(KeyAccounts); raw != "[]" {
		t.Fatalf("expected explicit empty list, got %q", raw)
	}
}

func TestBuildAuthenticationResult_FromCacheRecords(t *testing.T) {
	result, err := BuildAuthenticationResult(sampleRecords(1700003600))
	if err != nil {
		t.Fatalf("build result: %v", err)
	}
	if result.AccessToken != "access-secret" || result.RefreshToken != "refresh-secret" || result.IDToken != "id-token" {
		t.Fatalf("expected secrets from records, got %+v", result)
	}
	if result.ExpiresOn != 1700003600 || result.ExtendedExpiresOn != 1700007200 || result.CachedAt != 1700000000 {
		t.Fatalf("expected parsed timestamps, got %+v", result)
	}
	if result.TenantID != "tenant-1" || result.Username != "ada@example.com" || result.FamilyID != "1" {
		t.Fatalf("expected identity fields, got %+v", result)
	}

	records := sampleRecords(1700003600)
	access := records[1].(AccessTokenRecord)
	access.ExpiresOn = "tomorrow"
	records[1] = access
	if _, err := BuildAuthenticationResult(records); !IsKind(err, KindInvalidArgument) {
		t.Fatalf("expected invalid timestamp to fail, got %v", err)
	}
}
