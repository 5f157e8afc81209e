package sfu

import (
	"context"
	"net"
	"net/http"
	"time"
)

// resolveAnnouncedIP follows a 4-step precedence: (1) environment
// override, (2) in production mode a best-effort public-IP probe with
// timeout, (3) first non-loopback IPv4 of a local interface, (4) loopback
// as last resort. The result is immutable for process lifetime (callers
// resolve it once at Bridge construction).
func resolveAnnouncedIP(override string, production bool, probeTimeout time.Duration) string {
	if override != "" {
		return override
	}
	if production {
		if ip, ok := probePublicIP(probeTimeout); ok {
			return ip
		}
	}
	if ip, ok := firstNonLoopbackIPv4(); ok {
		return ip
	}
	return "127.0.0.1"
}

// probePublicIP makes a best-effort outbound request to discover the
// process's public IP. Failures (offline, blocked egress) are not fatal;
// the caller falls through to the local-interface step.
func probePublicIP(timeout time.Duration) (string, bool) {
	client := &http.Client{Timeout: timeout}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.ipify.org", nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	buf := make([]byte, 64)
	n, err := resp.Body.Read(buf)
	if n == 0 || (err != nil && n == 0) {
		return "", false
	}
	ip := net.ParseIP(string(buf[:n]))
	if ip == nil {
		return "", false
	}
	return ip.String(), true
}

func firstNonLoopbackIPv4() (string, bool) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", false
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String(), true
		}
	}
	return "", false
}
