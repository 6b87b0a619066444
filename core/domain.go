package core

type RecordKind string

const (
	RecordKindAccount      RecordKind = "account"
	RecordKindAccessToken  RecordKind = "access_token"
	RecordKindRefreshToken RecordKind = "refresh_token"
	RecordKindIDToken      RecordKind = "id_token"
)

// CacheRecord is an account or credential copied out of the token cache.
// The set of implementations is closed to this package.
type CacheRecord interface {
	Kind() RecordKind
	Header() RecordHeader
	cacheRecord()
}

// RecordHeader identifies the account and tenant a record belongs to.
type RecordHeader struct {
	HomeAccountID string `json:"home_account_id"`
	Environment   string `json:"environment"`
	Realm         string `json:"realm"`
}

func (h RecordHeader) Header() RecordHeader { return h }

type AccountRecord struct {
	RecordHeader
	LocalAccountID string `json:"local_account_id"`
	Username       string `json:"username"`
	AuthorityType  string `json:"authority_type"`
	Name           string `json:"name,omitempty"`
	ClientInfo     string `json:"client_info,omitempty"`
}

func (AccountRecord) Kind() RecordKind { return RecordKindAccount }
func (AccountRecord) cacheRecord()     {}

// AccessTokenRecord keeps timestamps as the decimal strings the cache stores.
type AccessTokenRecord struct {
	RecordHeader
	ClientID          string `json:"client_id"`
	Secret            string `json:"secret"`
	Target            string `json:"target"`
	TokenType         string `json:"token_type,omitempty"`
	Authority         string `json:"authority,omitempty"`
	CachedAt          string `json:"cached_at"`
	ExpiresOn         string `json:"expires_on"`
	ExtendedExpiresOn string `json:"extended_expires_on,omitempty"`
}

func (AccessTokenRecord) Kind() RecordKind { return RecordKindAccessToken }
func (AccessTokenRecord) cacheRecord()     {}

type RefreshTokenRecord struct {
	RecordHeader
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
	Target   string `json:"target,omitempty"`
	FamilyID string `json:"family_id,omitempty"`
}

func (RefreshTokenRecord) Kind() RecordKind { return RecordKindRefreshToken }
func (RefreshTokenRecord) cacheRecord()     {}

type IDTokenRecord struct {
	RecordHeader
	ClientID  string `json:"client_id"`
	Secret    string `json:"secret"`
	Authority string `json:"authority,omitempty"`
}

func (IDTokenRecord) Kind() RecordKind { return RecordKindIDToken }
func (IDTokenRecord) cacheRecord()     {}

// AuthenticationResult is a successful token acquisition as seen by the app.
type AuthenticationResult struct {
	AccessToken       string
	IDToken           string
	RefreshToken      string
	HomeAccountID     string
	LocalAccountID    string
	Username          string
	ClientInfo        string
	TokenType         string
	ClientID          string
	Scope             string
	Authority         string
	Environment       string
	TenantID          string
	CachedAt          int64
	ExpiresOn         int64
	ExtendedExpiresOn int64
	FamilyID          string
	SpeRing           string
	RefreshTokenAge   string
	TenantProfiles    []CacheRecord
}

// CurrentTenantProfile is the record for the tenant the token was issued in.
func (r AuthenticationResult) CurrentTenantProfile() (CacheRecord, bool) {
	if len(r.TenantProfiles) == 0 {
		return nil, false
	}
	return r.TenantProfiles[0], true
}

// Negotiation is the outcome of a hello exchange. Supported is false when the
// broker predates the handshake, in which case Version holds the fallback.
type Negotiation struct {
	Version   string
	Supported bool
}

// Session is a connected channel plus the protocol version negotiated on it.
type Session struct {
	Channel           ChannelHandle
	NegotiatedVersion string
	HandshakeSupport  bool
}
