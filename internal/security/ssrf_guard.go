// Package security はフィード取得と記事表示のための安全対策を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// defaultAllowedPorts は取得を許可するポート。
var defaultAllowedPorts = []int{80, 443}

// privateCIDRs は事前検証で拒否するアドレス範囲。
// 接続時の検証はsafeurlのDialerフックが行う。
var privateCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// SSRFGuard はフィードや記事ページの取得先を公開ネットワークに限定する。
// fetcher.SSRFValidatorを満たす。
type SSRFGuard struct {
	allowedPorts []int
}

// NewSSRFGuard はSSRFGuardを生成する。portsを省略した場合は80/443のみ許可する。
func NewSSRFGuard(ports ...int) *SSRFGuard {
	if len(ports) == 0 {
		ports = defaultAllowedPorts
	}
	return &SSRFGuard{allowedPorts: ports}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを返す。
// プライベート・ループバック・リンクローカル宛ての接続はDNS解決後に拒否される。
// レスポンスサイズの上限は呼び出し側（fetcher）が読み取り時に適用する。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(g.allowedPorts...).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL はDNS解決を行わずにURLを静的に検証する。
func (g *SSRFGuard) ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("disallowed scheme: %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range privateCIDRs {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}

	if port := u.Port(); port != "" {
		p, err := net.LookupPort("tcp", port)
		if err != nil || !slices.Contains(g.allowedPorts, p) {
			return fmt.Errorf("disallowed port: %s", port)
		}
	}

	return nil
}
