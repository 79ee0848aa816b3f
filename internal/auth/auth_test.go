package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-relay/internal/config"
)

func TestCredentialFromRequest(t *testing.T) {
	cases := []struct {
		name   string
		mode   config.AuthMode
		url    string
		header map[string]string
		want   string
		err    error
	}{
		{name: "none ignores credentials", mode: config.AuthModeNone, url: "/ws/room/r1/?apiKey=x"},
		{name: "api_key from query", mode: config.AuthModeAPIKey, url: "/ws/room/r1/?apiKey=a", want: "a"},
		{name: "api_key accepts token alias", mode: config.AuthModeAPIKey, url: "/ws/room/r1/?token=t", want: "t"},
		{name: "api_key from X-API-Key", mode: config.AuthModeAPIKey, url: "/", header: map[string]string{"X-API-Key": "k"}, want: "k"},
		{name: "api_key from Authorization ApiKey", mode: config.AuthModeAPIKey, url: "/", header: map[string]string{"Authorization": "ApiKey k"}, want: "k"},
		{name: "jwt prefers token", mode: config.AuthModeJWT, url: "/?token=t&apiKey=a", want: "t"},
		{name: "jwt from bearer", mode: config.AuthModeJWT, url: "/", header: map[string]string{"Authorization": "Bearer t"}, want: "t"},
		{name: "unknown scheme ignored", mode: config.AuthModeJWT, url: "/", header: map[string]string{"Authorization": "Basic dTpw"}, err: ErrMissingCredentials},
		{name: "missing", mode: config.AuthModeAPIKey, url: "/", err: ErrMissingCredentials},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "http://relay.example.com"+tc.url, nil)
			require.NoError(t, err)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}

			got, err := CredentialFromRequest(tc.mode, req)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCredentialFromAuthMessage(t *testing.T) {
	req := require.New(t)

	cred, err := CredentialFromAuthMessage(config.AuthModeAPIKey, WireAuthMessage{Type: "auth", Token: "t"})
	req.NoError(err)
	req.Equal("t", cred)

	cred, err = CredentialFromAuthMessage(config.AuthModeJWT, WireAuthMessage{Type: "auth", Token: "t", APIKey: "a"})
	req.NoError(err)
	req.Equal("t", cred)

	_, err = CredentialFromAuthMessage(config.AuthModeJWT, WireAuthMessage{Type: "auth"})
	req.ErrorIs(err, ErrMissingCredentials)
}

func TestAPIKeyVerifier(t *testing.T) {
	v := APIKeyVerifier{Expected: "k"}
	require.NoError(t, v.Verify("k"))
	require.ErrorIs(t, v.Verify("nope"), ErrInvalidCredentials)
	require.ErrorIs(t, v.Verify(""), ErrInvalidCredentials)
	require.ErrorIs(t, APIKeyVerifier{}.Verify("k"), ErrInvalidCredentials)
}

func TestNewVerifier(t *testing.T) {
	v, err := NewVerifier(config.Config{AuthMode: config.AuthModeNone})
	require.NoError(t, err)
	require.Nil(t, v)

	v, err = NewVerifier(config.Config{AuthMode: config.AuthModeAPIKey, APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, APIKeyVerifier{}, v)

	v, err = NewVerifier(config.Config{AuthMode: config.AuthModeJWT, JWTSecret: "s"})
	require.NoError(t, err)
	require.IsType(t, &JWTVerifier{}, v)
}
