package callback

// ResponseModeType denotes where the authorization response parameters were found in the callback URI.
type ResponseModeType string

const (
	// FragmentResponseMode carries parameters after the '#'.
	// Used by the implicit flow: fixit://auth/callback#access_token=T1&refresh_token=T2
	FragmentResponseMode ResponseModeType = "fragment"

	// QueryResponseMode carries parameters in the query string.
	// Used by the authorization code flow: fixit://auth/callback?code=ABC123
	QueryResponseMode ResponseModeType = "query"
)

// CredentialKind tags the variant held by a Credential.
type CredentialKind int

const (
	// AuthorizationCodeKind is a one-time code that still has to be exchanged.
	AuthorizationCodeKind CredentialKind = iota + 1
	// TokenPairKind is an access/refresh token pair delivered directly.
	TokenPairKind
)

func (k CredentialKind) String() string {
	switch k {
	case AuthorizationCodeKind:
		return "authorization_code"
	case TokenPairKind:
		return "token_pair"
	}
	return "unknown"
}

// Credential is the credential material carried by a callback URI.
// Exactly one of Code or the AccessToken/RefreshToken pair is set, as selected by Kind.
type Credential struct {
	Kind         CredentialKind
	Code         string
	AccessToken  string
	RefreshToken string
	State        string
	Mode         ResponseModeType
}

func AuthorizationCode(code string) Credential {
	return Credential{Kind: AuthorizationCodeKind, Code: code}
}

func TokenPair(access, refresh string) Credential {
	return Credential{Kind: TokenPairKind, AccessToken: access, RefreshToken: refresh}
}

// ProviderError is an OAuth error returned to the callback instead of a credential.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return "authorization failed: " + e.Code + " - " + e.Description
}
