package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RecordTypeKey is the discriminator written on every encoded record.
const RecordTypeKey = "record_type"

type recordTypePeek struct {
	RecordType RecordKind `json:"record_type"`
}

type wireAccountRecord struct {
	RecordType RecordKind `json:"record_type"`
	AccountRecord
}

type wireAccessTokenRecord struct {
	RecordType RecordKind `json:"record_type"`
	AccessTokenRecord
}

type wireRefreshTokenRecord struct {
	RecordType RecordKind `json:"record_type"`
	RefreshTokenRecord
}

type wireIDTokenRecord struct {
	RecordType RecordKind `json:"record_type"`
	IDTokenRecord
}

// EncodeRecordList serializes records as a JSON array, preserving order.
// Pointer records are written as their values, so decoding always yields
// value records.
func EncodeRecordList(records []CacheRecord) (string, error) {
	raw, err := encodeRecordArray(records)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeRecordList parses a JSON array produced by EncodeRecordList.
func DecodeRecordList(payload string) ([]CacheRecord, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, decodeError(ErrorCodeDecodeFailed, "record list payload is empty", nil)
	}
	return decodeRecordArray(json.RawMessage(payload))
}

// MarshalCacheRecord encodes one record with its record_type discriminator.
func MarshalCacheRecord(record CacheRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("core: cache record is nil")
	}
	return encodeRecord(record)
}

// UnmarshalCacheRecord decodes a record written by MarshalCacheRecord.
func UnmarshalCacheRecord(payload []byte) (CacheRecord, error) {
	record, err := decodeRecord(json.RawMessage(payload))
	if err != nil {
		return nil, decodeError(ErrorCodeDecodeFailed, "cache record", err)
	}
	return record, nil
}

func encodeRecordArray(records []CacheRecord) (json.RawMessage, error) {
	items := make([]json.RawMessage, 0, len(records))
	for index, record := range records {
		encoded, err := encodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("core: encode record %d: %w", index, err)
		}
		items = append(items, encoded)
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("core: encode record list: %w", err)
	}
	return raw, nil
}

func encodeRecord(record CacheRecord) (json.RawMessage, error) {
	var wire any
	switch typed := derefRecord(record).(type) {
	case AccountRecord:
		wire = wireAccountRecord{RecordType: RecordKindAccount, AccountRecord: typed}
	case AccessTokenRecord:
		wire = wireAccessTokenRecord{RecordType: RecordKindAccessToken, AccessTokenRecord: typed}
	case RefreshTokenRecord:
		wire = wireRefreshTokenRecord{RecordType: RecordKindRefreshToken, RefreshTokenRecord: typed}
	case IDTokenRecord:
		wire = wireIDTokenRecord{RecordType: RecordKindIDToken, IDTokenRecord: typed}
	default:
		return nil, fmt.Errorf("core: unsupported cache record %T", record)
	}
	return json.Marshal(wire)
}

func decodeRecordArray(raw json.RawMessage) ([]CacheRecord, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, decodeError(ErrorCodeDecodeFailed, "record list is not a JSON array", err)
	}
	records := make([]CacheRecord, 0, len(items))
	for index, item := range items {
		record, err := decodeRecord(item)
		if err != nil {
			return nil, decodeError(ErrorCodeDecodeFailed, fmt.Sprintf("record %d", index), err)
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeRecord(raw json.RawMessage) (CacheRecord, error) {
	peek := recordTypePeek{}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return nil, err
	}
	switch RecordKind(strings.TrimSpace(string(peek.RecordType))) {
	case RecordKindAccount:
		wire := wireAccountRecord{}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return wire.AccountRecord, nil
	case RecordKindAccessToken:
		wire := wireAccessTokenRecord{}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return wire.AccessTokenRecord, nil
	case RecordKindRefreshToken:
		wire := wireRefreshTokenRecord{}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return wire.RefreshTokenRecord, nil
	case RecordKindIDToken:
		wire := wireIDTokenRecord{}
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return wire.IDTokenRecord, nil
	case "":
		return nil, fmt.Errorf("core: record is missing %s", RecordTypeKey)
	default:
		return nil, fmt.Errorf("core: unknown %s %q", RecordTypeKey, peek.RecordType)
	}
}
