package oidcclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/fixit-auth/flowstate"
	"github.com/jrsteele09/fixit-auth/identity"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/session"
	"golang.org/x/oauth2"
)

// AuthorizationURL records a PKCE flow and returns the issuer's authorize URL.
// A non-empty provider is forwarded so a brokering issuer can pick the upstream IdP.
func (c *Client) AuthorizationURL(ctx context.Context, provider, redirectURL string) (string, error) {
	if redirectURL == "" {
		return "", errors.Wrapf(errors.ErrConfiguration, "[Client.AuthorizationURL] redirect url is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := c.nowTime()
	if err := c.storage.DeleteExpired(now.Add(-flowTTL)); err != nil {
		c.log.Warn().Err(err).Msg("failed to purge expired flows")
	}

	verifier := oauth2.GenerateVerifier()
	flow := &flowstate.Flow{
		State:        uuid.NewString(),
		CodeVerifier: verifier,
		RedirectURL:  redirectURL,
		Provider:     provider,
		CreatedAt:    now,
	}
	if err := c.storage.Upsert(flow); err != nil {
		return "", errors.Wrapf(err, "[Client.AuthorizationURL] save flow")
	}

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if provider != "" {
		opts = append(opts, oauth2.SetAuthURLParam("provider", provider))
	}
	return c.configFor(redirectURL).AuthCodeURL(flow.State, opts...), nil
}

// ExchangeCodeForSession redeems code against the pending flow named by
// state, or the most recent one when the callback carried no state.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, state string) (*session.Session, error) {
	if code == "" {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "[Client.ExchangeCodeForSession] empty code")
	}

	flow, err := c.pendingFlow(state)
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.ExchangeCodeForSession] no pending flow")
	}

	// The code is single use, so the token request is never retried.
	tok, err := c.configFor(flow.RedirectURL).Exchange(c.tokenContext(ctx), code, oauth2.VerifierOption(flow.CodeVerifier))
	// The verifier is single use whatever the outcome.
	if derr := c.storage.Delete(flow.State); derr != nil {
		c.log.Warn().Err(derr).Str("state", flow.State).Msg("failed to delete flow")
	}
	if err != nil {
		return nil, errors.Wrapf(describeError(err), "[Client.ExchangeCodeForSession] exchange")
	}

	sess, err := sessionFromToken(tok, "")
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.ExchangeCodeForSession]")
	}
	if err := c.save(sess); err != nil {
		return nil, err
	}
	c.log.Info().Str("user_id", sess.UserID).Msg("code exchanged")
	c.emit(identity.Event{Kind: identity.EventSignedIn, Session: sess})
	return sess, nil
}

// SetSession installs an implicit-grant token pair. The access token is
// decoded without verification for its subject and expiry; the issuer
// validates it on use. An already-expired pair is refreshed immediately.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "[Client.SetSession] access and refresh token are required")
	}

	sess, err := sessionFromToken(&oauth2.Token{AccessToken: accessToken, RefreshToken: refreshToken}, "")
	if err != nil {
		return nil, errors.Wrapf(err, "[Client.SetSession]")
	}

	if sess.Expired(c.nowTime(), 0) {
		sess, err = c.refresh(ctx, refreshToken, sess.UserID)
		if err != nil {
			return nil, errors.Wrapf(err, "[Client.SetSession] refresh expired pair")
		}
	}
	if err := c.save(sess); err != nil {
		return nil, err
	}
	c.emit(identity.Event{Kind: identity.EventSignedIn, Session: sess})
	return sess, nil
}

// GetSession returns the stored session, refreshing it once when the access
// token is about to lapse. A refresh token the issuer rejects ends the session.
func (c *Client) GetSession(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	sess, err := c.storage.LoadSession()
	if err != nil || sess == nil {
		c.mu.Unlock()
		return nil, err
	}
	if !sess.Expired(c.nowTime(), expiryLeeway) || sess.RefreshToken == "" {
		c.mu.Unlock()
		return sess, nil
	}

	refreshed, err := c.refresh(ctx, sess.RefreshToken, sess.UserID)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) && be.Rejected() {
			derr := c.storage.DeleteSession()
			c.mu.Unlock()
			if derr != nil {
				return nil, errors.Wrapf(derr, "[Client.GetSession] drop rejected session")
			}
			c.log.Info().Str("user_id", sess.UserID).Msg("refresh token rejected, session ended")
			c.emit(identity.Event{Kind: identity.EventSignedOut})
			return nil, nil
		}
		c.mu.Unlock()
		return nil, errors.Wrapf(err, "[Client.GetSession] refresh")
	}
	if err := c.storage.SaveSession(refreshed); err != nil {
		c.mu.Unlock()
		return nil, errors.Wrapf(err, "[Client.GetSession] save refreshed session")
	}
	c.mu.Unlock()

	c.emit(identity.Event{Kind: identity.EventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

// SignOut forgets the stored session. ScopeGlobal also revokes the refresh
// token at the issuer; the local session is cleared even if revocation fails.
func (c *Client) SignOut(ctx context.Context, scope identity.SignOutScope) error {
	c.mu.Lock()
	sess, err := c.storage.LoadSession()
	if err != nil {
		c.mu.Unlock()
		return errors.Wrapf(err, "[Client.SignOut] load session")
	}
	if sess == nil {
		c.mu.Unlock()
		return errors.ErrAuthSessionMissing
	}
	if err := c.storage.DeleteSession(); err != nil {
		c.mu.Unlock()
		return errors.Wrapf(err, "[Client.SignOut] delete session")
	}
	c.mu.Unlock()
	c.emit(identity.Event{Kind: identity.EventSignedOut})

	if scope != identity.ScopeGlobal {
		return nil
	}
	if err := c.revoke(ctx, sess.RefreshToken); err != nil {
		return errors.Wrapf(err, "[Client.SignOut] revoke")
	}
	return nil
}

func (c *Client) pendingFlow(state string) (*flowstate.Flow, error) {
	if state == "" {
		return c.storage.Latest()
	}
	return c.storage.Get(state)
}

func (c *Client) save(sess *session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storage.SaveSession(sess); err != nil {
		return errors.Wrapf(err, "save session")
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken, userID string) (*session.Session, error) {
	// Issuers that rotate refresh tokens treat each one as single use.
	ts := c.oauth.TokenSource(c.tokenContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, describeError(err)
	}
	return sessionFromToken(tok, userID)
}

// revoke follows RFC 7009. Issuers without a revocation endpoint are skipped.
func (c *Client) revoke(ctx context.Context, refreshToken string) error {
	if c.revocationURL == "" || refreshToken == "" {
		return nil
	}

	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {c.oauth.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &BackendError{StatusCode: resp.StatusCode, Code: "revocation_failed"}
	}
	return nil
}
