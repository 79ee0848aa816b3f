package policy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrSourceDenied wraps every rejection returned by CheckURL.
var ErrSourceDenied = errors.New("recording source denied")

// DefaultSchemes are the URL schemes ffmpeg is allowed to open.
var DefaultSchemes = []string{"http", "https", "rtmp", "rtmps", "rtsp", "srt"}

// Resolver is the subset of *net.Resolver used to resolve source hosts.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// SourcePolicy controls which hosts a recording may be captured from.
//
// Evaluation order for every resolved address:
//  1. Default private/special-range denies (when AllowPrivateNetworks=false)
//  2. CIDR denylist
//  3. CIDR allowlist (if configured)
//
// Deny rules always override allow rules. A host is accepted only when all
// of its addresses pass.
type SourcePolicy struct {
	AllowPrivateNetworks bool

	AllowCIDRs []*net.IPNet
	DenyCIDRs  []*net.IPNet

	Schemes  []string
	Resolver Resolver
}

// New builds a policy from comma-separated CIDR lists.
func New(allowPrivate bool, allowCIDRs, denyCIDRs string) (*SourcePolicy, error) {
	allow, err := parseCIDRList(allowCIDRs)
	if err != nil {
		return nil, fmt.Errorf("source policy: invalid allow list: %w", err)
	}
	deny, err := parseCIDRList(denyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("source policy: invalid deny list: %w", err)
	}
	return &SourcePolicy{
		AllowPrivateNetworks: allowPrivate,
		AllowCIDRs:           allow,
		DenyCIDRs:            deny,
	}, nil
}

// CheckURL parses raw, checks its scheme and resolves its host. Literal IP
// hosts are not resolved.
func (p *SourcePolicy) CheckURL(ctx context.Context, raw string) error {
	if p == nil {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceDenied, err)
	}
	schemes := p.Schemes
	if len(schemes) == 0 {
		schemes = DefaultSchemes
	}
	if !lo.Contains(schemes, strings.ToLower(u.Scheme)) {
		return fmt.Errorf("%w: scheme %q not allowed", ErrSourceDenied, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrSourceDenied)
	}
	if port := u.Port(); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: invalid port %q", ErrSourceDenied, port)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return p.AllowIP(ip)
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrSourceDenied, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s has no addresses", ErrSourceDenied, host)
	}
	for _, a := range addrs {
		if err := p.AllowIP(a.IP); err != nil {
			return err
		}
	}
	return nil
}

func (p *SourcePolicy) AllowIP(remoteIP net.IP) error {
	if remoteIP == nil {
		return fmt.Errorf("%w: remote IP is nil", ErrSourceDenied)
	}

	ip := remoteIP
	var ipKind string
	if ip4 := remoteIP.To4(); ip4 != nil {
		ip = ip4
		ipKind = "ipv4"
	} else if ip16 := remoteIP.To16(); ip16 != nil {
		ip = ip16
		ipKind = "ipv6"
	} else {
		return fmt.Errorf("%w: invalid remote IP %q", ErrSourceDenied, remoteIP.String())
	}

	if !p.AllowPrivateNetworks {
		denied := defaultDeniedIPv4CIDRs
		if ipKind == "ipv6" {
			denied = defaultDeniedIPv6CIDRs
		}
		if ipInNets(ip, denied) {
			return fmt.Errorf("%w: %s is a private or special address", ErrSourceDenied, remoteIP.String())
		}
	}

	if ipInNets(ip, p.DenyCIDRs) {
		return fmt.Errorf("%w: %s denied by CIDR rule", ErrSourceDenied, remoteIP.String())
	}
	if len(p.AllowCIDRs) > 0 && !ipInNets(ip, p.AllowCIDRs) {
		return fmt.Errorf("%w: %s not in allowlist", ErrSourceDenied, remoteIP.String())
	}
	return nil
}

func parseCIDRList(v string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, raw := range strings.Split(v, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("parse CIDR %q: %w", raw, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func ipInNets(ip net.IP, nets []*net.IPNet) bool {
	return lo.ContainsBy(nets, func(n *net.IPNet) bool {
		return n != nil && n.Contains(ip)
	})
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

var defaultDeniedIPv4CIDRs = []*net.IPNet{
	mustCIDR("127.0.0.0/8"),
	mustCIDR("169.254.0.0/16"),
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
	// CGNAT
	mustCIDR("100.64.0.0/10"),
	mustCIDR("224.0.0.0/4"),
	mustCIDR("0.0.0.0/8"),
	mustCIDR("240.0.0.0/4"),
}

var defaultDeniedIPv6CIDRs = []*net.IPNet{
	mustCIDR("::1/128"),
	mustCIDR("fe80::/10"),
	// unique local addresses (RFC4193)
	mustCIDR("fc00::/7"),
	mustCIDR("ff00::/8"),
	mustCIDR("::/128"),
}
