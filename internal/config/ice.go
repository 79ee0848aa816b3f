package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
	"github.com/samber/lo"
)

const (
	EnvICEServersJSON = "ICE_SERVERS_JSON"
	EnvSTUNURLs       = "STUN_URLS"
	EnvTURNURLs       = "TURN_URLS"
	EnvTURNUsername   = "TURN_USERNAME"
	EnvTURNCredential = "TURN_CREDENTIAL"
)

// ICESource is the raw ICE server configuration handed to browsers through
// /webrtc/ice. JSON wins over the STUN/TURN convenience values.
type ICESource struct {
	JSON           string
	STUNURLs       string
	TURNURLs       string
	TURNUsername   string
	TURNCredential string
	// EphemeralTURN means TURN entries get per-request credentials, so they
	// may be configured without any.
	EphemeralTURN bool
}

func (src ICESource) Servers() ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(src.JSON); raw != "" {
		servers, err := ParseICEServersJSON(raw, src.EphemeralTURN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvICEServersJSON, err)
		}
		return servers, nil
	}

	var servers []webrtc.ICEServer
	if urls := splitList(src.STUNURLs); len(urls) > 0 {
		s := webrtc.ICEServer{URLs: urls}
		if err := checkICEServer(s, false); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvSTUNURLs, err)
		}
		servers = append(servers, s)
	}
	if urls := splitList(src.TURNURLs); len(urls) > 0 {
		user := strings.TrimSpace(src.TURNUsername)
		cred := strings.TrimSpace(src.TURNCredential)
		if !src.EphemeralTURN && (user == "" || cred == "") {
			return nil, fmt.Errorf("%s and %s are required with %s", EnvTURNUsername, EnvTURNCredential, EnvTURNURLs)
		}
		s := withCredential(webrtc.ICEServer{URLs: urls, Username: user}, cred)
		if err := checkICEServer(s, src.EphemeralTURN); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvTURNURLs, err)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// urlList accepts both "urls": "x" and "urls": ["x", ...] like RTCIceServer.
type urlList []string

func (u *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if json.Unmarshal(b, &one) == nil {
		*u = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("urls must be a string or an array of strings")
	}
	*u = many
	return nil
}

// ParseICEServersJSON parses a browser-style RTCIceServer list.
func ParseICEServersJSON(raw string, ephemeralTURN bool) ([]webrtc.ICEServer, error) {
	var entries []struct {
		URLs       urlList `json:"urls"`
		Username   string  `json:"username"`
		Credential string  `json:"credential"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		s := withCredential(webrtc.ICEServer{
			URLs:     trimAll(e.URLs),
			Username: strings.TrimSpace(e.Username),
		}, strings.TrimSpace(e.Credential))
		if err := checkICEServer(s, ephemeralTURN); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// withCredential leaves Credential nil when cred is empty so the JSON sent
// to browsers omits it.
func withCredential(s webrtc.ICEServer, cred string) webrtc.ICEServer {
	if cred != "" {
		s.Credential = cred
	}
	return s
}

func checkICEServer(s webrtc.ICEServer, ephemeralTURN bool) error {
	if len(s.URLs) == 0 {
		return errors.New("missing urls")
	}
	needsCreds := false
	for _, raw := range s.URLs {
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", raw, err)
		}
		if uri.Scheme == stun.SchemeTypeTURN || uri.Scheme == stun.SchemeTypeTURNS {
			needsCreds = true
		}
	}
	if !needsCreds || ephemeralTURN {
		return nil
	}
	if s.Username == "" {
		return errors.New("turn urls require username")
	}
	if cred, _ := s.Credential.(string); cred == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}

func trimAll(values []string) []string {
	return lo.Compact(lo.Map(values, func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}

func splitList(value string) []string {
	return trimAll(strings.Split(value, ","))
}
