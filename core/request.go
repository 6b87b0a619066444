package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Prompt string

const (
	PromptUnspecified   Prompt = ""
	PromptLogin         Prompt = "login"
	PromptSelectAccount Prompt = "select_account"
	PromptConsent       Prompt = "consent"
	PromptNone          Prompt = "none"
)

type AuthorizationAgent string

const (
	AuthorizationAgentDefault AuthorizationAgent = "default"
	AuthorizationAgentBrowser AuthorizationAgent = "browser"
	AuthorizationAgentWebView AuthorizationAgent = "webview"
)

// QueryParameter is one extra authorize-endpoint parameter. Order is kept.
type QueryParameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BrowserDescriptor identifies a browser the broker may use for consent.
type BrowserDescriptor struct {
	PackageName       string   `json:"package_name"`
	SignatureHashes   []string `json:"signature_hashes,omitempty"`
	VersionLowerBound string   `json:"version_lower_bound,omitempty"`
	VersionUpperBound string   `json:"version_upper_bound,omitempty"`
}

// AcquireTokenRequest is the app's token request, sent to the broker as JSON
// under broker_request_v2.
type AcquireTokenRequest struct {
	ClientID             string              `json:"client_id"`
	Authority            string              `json:"authority"`
	RedirectURI          string              `json:"redirect_uri,omitempty"`
	Scopes               []string            `json:"scopes"`
	ExtraScopesToConsent []string            `json:"extra_scopes_to_consent,omitempty"`
	LoginHint            string              `json:"login_hint,omitempty"`
	HomeAccountID        string              `json:"home_account_id,omitempty"`
	Prompt               Prompt              `json:"prompt,omitempty"`
	ExtraQueryParameters []QueryParameter    `json:"extra_query_param,omitempty"`
	RequestHeaders       map[string]string   `json:"request_headers,omitempty"`
	AuthorizationAgent   AuthorizationAgent  `json:"authorization_agent,omitempty"`
	BrowserSafeList      []BrowserDescriptor `json:"browser_safe_list,omitempty"`
	Claims               string              `json:"claims,omitempty"`
	ForceRefresh         bool                `json:"force_refresh,omitempty"`
	CorrelationID        string              `json:"correlation_id,omitempty"`
}

// Normalize trims identifiers, drops blank and duplicate scopes and fills the
// default authorization agent.
func (r AcquireTokenRequest) Normalize() AcquireTokenRequest {
	r.ClientID = strings.TrimSpace(r.ClientID)
	r.Authority = strings.TrimSpace(r.Authority)
	r.RedirectURI = strings.TrimSpace(r.RedirectURI)
	r.LoginHint = strings.TrimSpace(r.LoginHint)
	r.HomeAccountID = strings.TrimSpace(r.HomeAccountID)
	r.CorrelationID = strings.TrimSpace(r.CorrelationID)
	r.Scopes = normalizeScopes(r.Scopes)
	r.ExtraScopesToConsent = normalizeScopes(r.ExtraScopesToConsent)
	r.Prompt = Prompt(strings.ToLower(strings.TrimSpace(string(r.Prompt))))
	r.AuthorizationAgent = AuthorizationAgent(strings.ToLower(strings.TrimSpace(string(r.AuthorizationAgent))))
	if r.AuthorizationAgent == "" {
		r.AuthorizationAgent = AuthorizationAgentDefault
	}
	params := make([]QueryParameter, 0, len(r.ExtraQueryParameters))
	for _, param := range r.ExtraQueryParameters {
		key := strings.TrimSpace(param.Key)
		if key == "" {
			continue
		}
		params = append(params, QueryParameter{Key: key, Value: param.Value})
	}
	if len(params) == 0 {
		params = nil
	}
	r.ExtraQueryParameters = params
	return r
}

// Validate checks a normalized request for the given request kind.
func (r AcquireTokenRequest) Validate(kind RequestKind) error {
	operation := OperationAcquireToken
	if kind == RequestAcquireTokenSilent {
		operation = "acquireTokenSilent"
	}
	if r.ClientID == "" {
		return invalidArgumentError(operation, "client_id is required")
	}
	if len(r.Scopes) == 0 {
		return invalidArgumentError(operation, "at least one scope is required")
	}
	switch r.Prompt {
	case PromptUnspecified, PromptLogin, PromptSelectAccount, PromptConsent, PromptNone:
	default:
		return invalidArgumentError(operation, fmt.Sprintf("prompt %q is invalid", r.Prompt))
	}
	switch r.AuthorizationAgent {
	case AuthorizationAgentDefault, AuthorizationAgentBrowser, AuthorizationAgentWebView:
	default:
		return invalidArgumentError(operation, fmt.Sprintf("authorization_agent %q is invalid", r.AuthorizationAgent))
	}
	if kind == RequestAcquireTokenSilent && r.HomeAccountID == "" {
		return invalidArgumentError(operation, "home_account_id is required for silent requests")
	}
	if r.Claims != "" {
		var claims map[string]any
		if err := json.Unmarshal([]byte(r.Claims), &claims); err != nil || claims == nil {
			return invalidArgumentError(operation, "claims must be a JSON object")
		}
	}
	return nil
}

func (r AcquireTokenRequest) ScopeString() string {
	return strings.Join(r.Scopes, " ")
}

func EncodeAcquireTokenRequest(req AcquireTokenRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("core: encode acquire token request: %w", err)
	}
	return string(raw), nil
}

func DecodeAcquireTokenRequest(envelope Envelope) (AcquireTokenRequest, error) {
	raw, ok := envelope.NonEmptyString(KeyRequest)
	if !ok {
		return AcquireTokenRequest{}, invalidArgumentError(OperationAcquireToken, KeyRequest+" is required")
	}
	req := AcquireTokenRequest{}
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return AcquireTokenRequest{}, invalidArgumentError(OperationAcquireToken, "request payload is not valid JSON")
	}
	return req.Normalize(), nil
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		for _, part := range strings.Fields(scope) {
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
