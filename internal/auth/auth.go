package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
)

type Verifier interface {
	Verify(credential string) error
}

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// NewVerifier returns the verifier for cfg.AuthMode, or nil when auth is
// disabled.
func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeNone:
		return nil, nil
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// CredentialFromRequest extracts a credential from the query string
// (apiKey / token) or the X-API-Key / Authorization headers. Both auth modes
// accept either spelling so browser clients can reuse one code path.
func CredentialFromRequest(mode config.AuthMode, r *http.Request) (string, error) {
	if mode == config.AuthModeNone {
		return "", nil
	}
	q := r.URL.Query()

	var candidates []string
	switch mode {
	case config.AuthModeAPIKey:
		candidates = []string{q.Get("apiKey"), q.Get("token"), r.Header.Get("X-API-Key")}
	case config.AuthModeJWT:
		candidates = []string{q.Get("token"), q.Get("apiKey"), r.Header.Get("X-API-Key")}
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
	candidates = append(candidates, authorizationCredential(r.Header.Get("Authorization")))

	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c, nil
		}
	}
	return "", ErrMissingCredentials
}

func authorizationCredential(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "bearer", "apikey":
		return strings.TrimSpace(value)
	default:
		return ""
	}
}

// WireAuthMessage is the first frame sent by clients that could not put their
// credential in the URL.
type WireAuthMessage struct {
	Type   string `json:"type"`
	APIKey string `json:"apiKey,omitempty"`
	Token  string `json:"token,omitempty"`
}

func CredentialFromAuthMessage(mode config.AuthMode, msg WireAuthMessage) (string, error) {
	var first, second string
	switch mode {
	case config.AuthModeAPIKey:
		first, second = msg.APIKey, msg.Token
	case config.AuthModeJWT:
		first, second = msg.Token, msg.APIKey
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
	if first != "" {
		return first, nil
	}
	if second != "" {
		return second, nil
	}
	return "", ErrMissingCredentials
}
