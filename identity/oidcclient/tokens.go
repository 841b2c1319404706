package oidcclient

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/fixit-auth/internal/errors"
	"github.com/jrsteele09/fixit-auth/session"
	"golang.org/x/oauth2"
)

// sessionFromToken builds a session from an issuer token response. The user
// id comes from the id_token when present, else from the access token, else
// fallbackUserID.
func sessionFromToken(tok *oauth2.Token, fallbackUserID string) (*session.Session, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "token response without access token")
	}

	sess := &session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}

	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		if claims, err := unverifiedClaims(idToken); err == nil {
			sess.UserID, _ = claims.GetSubject()
		}
	}

	claims, err := unverifiedClaims(tok.AccessToken)
	switch {
	case err == nil:
		if sess.UserID == "" {
			sess.UserID, _ = claims.GetSubject()
		}
		if sess.ExpiresAt.IsZero() {
			if exp, _ := claims.GetExpirationTime(); exp != nil {
				sess.ExpiresAt = exp.Time
			}
		}
	case sess.UserID == "" && fallbackUserID == "":
		return nil, errors.Wrapf(errors.Join(errors.ErrInvalidToken, err), "decode access token")
	}

	if sess.UserID == "" {
		sess.UserID = fallbackUserID
	}
	if sess.UserID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "token carries no subject")
	}
	sess.ExpiresAt = sess.ExpiresAt.Truncate(time.Second)
	return sess, nil
}

func unverifiedClaims(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
