package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func expectedCredential(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestGenerate_DeterministicWithFixedTime(t *testing.T) {
	req := require.New(t)
	g, err := NewGenerator(Config{
		SharedSecret:   "shared-secret",
		TTLSeconds:     3600,
		UsernamePrefix: "aero",
		Now:            func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	req.NoError(err)

	creds, err := g.Generate("room42")
	req.NoError(err)
	req.Equal("1700003600:aero:room42", creds.Username)
	req.Equal(expectedCredential("shared-secret", creds.Username), creds.Credential)
	req.Equal(time.Unix(1_700_003_600, 0).UTC(), creds.ExpiresAt)
}

func TestGenerateRandom_UsesIDSource(t *testing.T) {
	g, err := NewGenerator(Config{
		SharedSecret:   "s",
		TTLSeconds:     10,
		UsernamePrefix: "aero",
		Now:            func() time.Time { return time.Unix(42, 0) },
		IDSource:       func() string { return "fixed" },
	})
	require.NoError(t, err)

	creds, err := g.GenerateRandom()
	require.NoError(t, err)
	require.Equal(t, "52:aero:fixed", creds.Username)
}

func TestGenerateRandom_DefaultIDIsUnique(t *testing.T) {
	g, err := NewGenerator(Config{SharedSecret: "s", TTLSeconds: 10, UsernamePrefix: "aero"})
	require.NoError(t, err)

	a, err := g.GenerateRandom()
	require.NoError(t, err)
	b, err := g.GenerateRandom()
	require.NoError(t, err)
	require.NotEqual(t, a.Username, b.Username)
	require.Len(t, strings.Split(a.Username, ":"), 3)
}

func TestNewGenerator_Validation(t *testing.T) {
	for _, cfg := range []Config{
		{TTLSeconds: 1, UsernamePrefix: "p"},
		{SharedSecret: "s", UsernamePrefix: "p"},
		{SharedSecret: "s", TTLSeconds: 1},
		{SharedSecret: "s", TTLSeconds: 1, UsernamePrefix: "a:b"},
	} {
		_, err := NewGenerator(cfg)
		require.Error(t, err, "%+v", cfg)
	}
}

func TestGenerate_RejectsColonInID(t *testing.T) {
	g, err := NewGenerator(Config{SharedSecret: "s", TTLSeconds: 1, UsernamePrefix: "p"})
	require.NoError(t, err)
	_, err = g.Generate("a:b")
	require.Error(t, err)
	_, err = g.Generate("")
	require.Error(t, err)
}

func TestApply(t *testing.T) {
	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"TURN:turn.example.com:3478"}},
	}
	out := Apply(servers, Credentials{Username: "u", Credential: "c"})

	require.Len(t, out, 2)
	require.Empty(t, out[0].Username)
	require.Nil(t, out[0].Credential)
	require.Equal(t, "u", out[1].Username)
	require.Equal(t, "c", out[1].Credential)
	require.Empty(t, servers[1].Username, "input must not be mutated")
}
