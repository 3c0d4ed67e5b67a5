package router

import (
	"net"
	"strings"
)

// hostAllowed reports whether host, with any port stripped, names this
// thing. The comparison ignores case.
func (r *Router) hostAllowed(host string) bool {
	name := stripPort(host)
	if name == "" {
		return false
	}
	for _, allowed := range r.allowedHosts {
		if strings.EqualFold(name, allowed) {
			return true
		}
	}
	return false
}

// stripPort removes a trailing :port and IPv6 brackets.
func stripPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

func allowedHosts(cfg Config) []string {
	hosts := []string{"localhost"}
	if cfg.Name != "" {
		hosts = append(hosts, cfg.Name+".local")
	}
	if cfg.IP != "" {
		hosts = append(hosts, cfg.IP)
	}
	return hosts
}
