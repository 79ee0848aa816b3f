package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseICEServersJSON(t *testing.T) {
	servers, err := ParseICEServersJSON(`[
	  {"urls": ["stun:stun.example.com:3478", " "]},
	  {"urls": "turn:turn.example.com:3478?transport=udp", "username": "user", "credential": "pass"}
	]`, false)
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Nil(t, servers[0].Credential)
	assert.Equal(t, []string{"turn:turn.example.com:3478?transport=udp"}, servers[1].URLs)
	assert.Equal(t, "user", servers[1].Username)
	assert.Equal(t, "pass", servers[1].Credential)
}

func TestParseICEServersJSON_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"urls wrong type":   `[{"urls": 3}]`,
		"no urls":           `[{"urls": []}]`,
		"unknown scheme":    `[{"urls": "https://example.com"}]`,
		"turn without cred": `[{"urls": "turn:turn.example.com:3478", "username": "u"}]`,
		"turn without user": `[{"urls": "turns:turn.example.com:5349", "credential": "c"}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseICEServersJSON(raw, false)
			assert.Error(t, err)
		})
	}
}

func TestParseICEServersJSON_EphemeralTURN(t *testing.T) {
	servers, err := ParseICEServersJSON(`[{"urls": "turn:turn.example.com:3478"}]`, true)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Empty(t, servers[0].Username)
	assert.Nil(t, servers[0].Credential)
}

func TestICESource_ConvenienceValues(t *testing.T) {
	servers, err := ICESource{
		STUNURLs:       "stun:a.example.com:3478, stun:b.example.com:3478,",
		TURNURLs:       "turn:turn.example.com:3478?transport=udp",
		TURNUsername:   " user ",
		TURNCredential: "pass",
	}.Servers()
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, []string{"stun:a.example.com:3478", "stun:b.example.com:3478"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
	assert.Equal(t, "user", servers[1].Username)
	assert.Equal(t, "pass", servers[1].Credential)
}

func TestICESource_JSONWins(t *testing.T) {
	servers, err := ICESource{
		JSON:     `[{"urls": "stun:json.example.com:3478"}]`,
		STUNURLs: "stun:env.example.com:3478",
	}.Servers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, []string{"stun:json.example.com:3478"}, servers[0].URLs)
}

func TestICESource_TURNCredentials(t *testing.T) {
	_, err := ICESource{TURNURLs: "turn:turn.example.com:3478"}.Servers()
	assert.ErrorContains(t, err, EnvTURNURLs)

	servers, err := ICESource{TURNURLs: "turn:turn.example.com:3478", EphemeralTURN: true}.Servers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Nil(t, servers[0].Credential)
}

func TestICESource_Empty(t *testing.T) {
	servers, err := ICESource{}.Servers()
	require.NoError(t, err)
	assert.Empty(t, servers)
}
