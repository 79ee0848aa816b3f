package policy

import (
	"context"
	"errors"
	"net"
	"testing"
)

type staticResolver map[string][]string

func (r staticResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, s := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(s)})
	}
	return out, nil
}

func TestCIDRPrecedence_DenyOverridesAllow(t *testing.T) {
	p := &SourcePolicy{
		AllowPrivateNetworks: true,
		AllowCIDRs:           []*net.IPNet{mustCIDR("1.1.1.0/24")},
		DenyCIDRs:            []*net.IPNet{mustCIDR("1.1.1.1/32")},
	}
	if err := p.AllowIP(net.ParseIP("1.1.1.1")); !errors.Is(err, ErrSourceDenied) {
		t.Fatalf("expected deny to override allow, got %v", err)
	}
	if err := p.AllowIP(net.ParseIP("1.1.1.2")); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCIDRAllowOnlyMode(t *testing.T) {
	p, err := New(false, "8.8.8.0/24", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.AllowIP(net.ParseIP("8.8.8.8")); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if err := p.AllowIP(net.ParseIP("1.1.1.1")); err == nil {
		t.Fatalf("expected deny when not in allowlist")
	}
}

func TestPrivateNetworksToggle(t *testing.T) {
	for _, ip := range []string{"10.0.0.1", "127.0.0.1", "169.254.169.254", "::1", "fd00::1"} {
		deny := &SourcePolicy{}
		if err := deny.AllowIP(net.ParseIP(ip)); err == nil {
			t.Fatalf("expected %s to be denied when AllowPrivateNetworks=false", ip)
		}
		allow := &SourcePolicy{AllowPrivateNetworks: true}
		if err := allow.AllowIP(net.ParseIP(ip)); err != nil {
			t.Fatalf("expected %s to be allowed when AllowPrivateNetworks=true, got %v", ip, err)
		}
	}
}

func TestNew_RejectsBadCIDR(t *testing.T) {
	if _, err := New(false, "10.0.0.0/33", ""); err == nil {
		t.Fatalf("expected error for bad allow CIDR")
	}
	if _, err := New(false, "", "nope"); err == nil {
		t.Fatalf("expected error for bad deny CIDR")
	}
}

func TestCheckURL(t *testing.T) {
	p := &SourcePolicy{
		Resolver: staticResolver{
			"stream.example.com": {"93.184.216.34"},
			"internal.example":   {"93.184.216.34", "10.1.2.3"},
		},
	}
	ctx := context.Background()

	allowed := []string{
		"rtmp://stream.example.com/live/room",
		"https://stream.example.com:8443/room.m3u8",
		"rtsp://93.184.216.34/cam",
	}
	for _, raw := range allowed {
		if err := p.CheckURL(ctx, raw); err != nil {
			t.Fatalf("CheckURL(%q): %v", raw, err)
		}
	}

	denied := []string{
		"file:///etc/passwd",
		"http://127.0.0.1/admin",
		"http://[::1]/",
		"http://internal.example/stream",
		"http://unknown.example/stream",
		"rtmp:///live",
		"http://stream.example.com:99999/",
	}
	for _, raw := range denied {
		if err := p.CheckURL(ctx, raw); !errors.Is(err, ErrSourceDenied) {
			t.Fatalf("CheckURL(%q) = %v, want ErrSourceDenied", raw, err)
		}
	}
}

func TestCheckURL_NilPolicyAllowsEverything(t *testing.T) {
	var p *SourcePolicy
	if err := p.CheckURL(context.Background(), "http://127.0.0.1/"); err != nil {
		t.Fatalf("nil policy: %v", err)
	}
}
