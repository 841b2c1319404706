package callback

import (
	"net/url"
	"strings"

	"github.com/jrsteele09/fixit-auth/internal/errors"
)

const (
	paramCode             = "code"
	paramAccessToken      = "access_token"
	paramRefreshToken     = "refresh_token"
	paramState            = "state"
	paramError            = "error"
	paramErrorDescription = "error_description"
)

// Parse extracts credential material from a callback URI.
//
// The fragment is consulted first; only when the URI has no fragment is the
// query used. A URI carrying credentials in both therefore yields the
// fragment's credential. Within the chosen parameter set a code wins over a
// token pair. When neither is present Parse returns ErrCredentialNotFound, or
// a *ProviderError if the set carries an OAuth error.
func Parse(raw string) (Credential, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Credential{}, errors.Wrapf(errors.ErrCredentialNotFound, "[callback.Parse] malformed uri: %v", err)
	}

	var (
		encoded string
		mode    ResponseModeType
	)
	switch {
	case u.EscapedFragment() != "":
		encoded, mode = u.EscapedFragment(), FragmentResponseMode
	case u.RawQuery != "":
		encoded, mode = u.RawQuery, QueryResponseMode
	default:
		return Credential{}, errors.ErrCredentialNotFound
	}

	params, err := url.ParseQuery(encoded)
	if err != nil {
		return Credential{}, errors.Wrapf(errors.ErrCredentialNotFound, "[callback.Parse] malformed %s parameters: %v", mode, err)
	}
	return fromParams(params, mode)
}

func fromParams(params url.Values, mode ResponseModeType) (Credential, error) {
	state := params.Get(paramState)

	if code := params.Get(paramCode); code != "" {
		c := AuthorizationCode(code)
		c.State, c.Mode = state, mode
		return c, nil
	}

	access, refresh := params.Get(paramAccessToken), params.Get(paramRefreshToken)
	if access != "" && refresh != "" {
		c := TokenPair(access, refresh)
		c.State, c.Mode = state, mode
		return c, nil
	}

	if e := params.Get(paramError); e != "" {
		return Credential{}, &ProviderError{Code: e, Description: params.Get(paramErrorDescription)}
	}
	return Credential{}, errors.ErrCredentialNotFound
}
