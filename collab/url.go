package collab

import (
	"fmt"
	"net/url"
	"strings"
)

// pure string transforms between the websocket connect url and the admin
// rest base url. Deterministic and reversible for the four supported
// prefixes; no network effect.

// NormalizeWsUrl maps whatever prefix the caller supplied to the
// websocket-equivalent scheme. A bare host gets ws://.
func NormalizeWsUrl(host string) string {
	switch {
	case strings.HasPrefix(host, "ws://"), strings.HasPrefix(host, "wss://"):
		return host
	case strings.HasPrefix(host, "http://"):
		return strings.Replace(host, "http://", "ws://", 1)
	case strings.HasPrefix(host, "https://"):
		return strings.Replace(host, "https://", "wss://", 1)
	default:
		return fmt.Sprintf("ws://%s", host)
	}
}

// AdminBaseUrl derives the admin rest base from the same host, mapping
// ws/wss back to http/https. The inverse of NormalizeWsUrl.
func AdminBaseUrl(host string) string {
	switch {
	case strings.HasPrefix(host, "http://"), strings.HasPrefix(host, "https://"):
		return host
	case strings.HasPrefix(host, "ws://"):
		return strings.Replace(host, "ws://", "http://", 1)
	case strings.HasPrefix(host, "wss://"):
		return strings.Replace(host, "wss://", "https://", 1)
	default:
		return fmt.Sprintf("http://%s", host)
	}
}

// ConnectUrl duplicates the token as an access_token query parameter,
// for deployments where header propagation through the websocket upgrade
// is unreliable.
func ConnectUrl(wsUrl string, token string) string {
	return fmt.Sprintf("%s?access_token=%s", NormalizeWsUrl(wsUrl), url.QueryEscape(token))
}
