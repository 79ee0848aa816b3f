package signaling

import (
	"errors"
	"net/http"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/auth"
	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
)

// AuthResult describes an authorized connection.
type AuthResult struct {
	// Subject is the JWT sub claim, when there is one. It is only logged.
	Subject string
}

// Authorizer decides whether a WebSocket may join a room. hello is the
// client's {type:"auth"} message, or nil to use the request alone.
type Authorizer interface {
	Authorize(r *http.Request, hello *auth.WireAuthMessage) (AuthResult, error)
}

type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(*http.Request, *auth.WireAuthMessage) (AuthResult, error) {
	return AuthResult{}, nil
}

// AuthAuthorizer enforces AUTH_MODE=api_key|jwt. Credentials come from the
// auth message when present, otherwise from the query string or headers.
type AuthAuthorizer struct {
	mode     config.AuthMode
	verifier auth.Verifier
}

// NewAuthorizer returns AllowAllAuthorizer for AUTH_MODE=none.
func NewAuthorizer(cfg config.Config) (Authorizer, error) {
	if cfg.AuthMode == config.AuthModeNone {
		return AllowAllAuthorizer{}, nil
	}
	v, err := auth.NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return AuthAuthorizer{mode: cfg.AuthMode, verifier: v}, nil
}

func (a AuthAuthorizer) Authorize(r *http.Request, hello *auth.WireAuthMessage) (AuthResult, error) {
	if a.verifier == nil {
		return AuthResult{}, errors.New("auth verifier not configured")
	}

	var (
		cred string
		err  error
	)
	if hello != nil {
		cred, err = auth.CredentialFromAuthMessage(a.mode, *hello)
	} else {
		cred, err = auth.CredentialFromRequest(a.mode, r)
	}
	if err != nil {
		return AuthResult{}, err
	}
	cred = strings.TrimSpace(cred)

	if jv, ok := a.verifier.(*auth.JWTVerifier); ok {
		claims, err := jv.Parse(cred)
		if err != nil {
			return AuthResult{}, err
		}
		return AuthResult{Subject: claims.Subject}, nil
	}
	if err := a.verifier.Verify(cred); err != nil {
		return AuthResult{}, err
	}
	return AuthResult{}, nil
}

// IsAuthMissing reports whether err means no credential was supplied, as
// opposed to a wrong one.
func IsAuthMissing(err error) bool {
	return errors.Is(err, auth.ErrMissingCredentials)
}

func unauthorizedMessage(err error) string {
	if errors.Is(err, auth.ErrMissingCredentials) {
		return "authentication required"
	}
	return "unauthorized"
}
