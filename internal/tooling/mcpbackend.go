package tooling

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/invopop/jsonschema"
)

// ServerConfig describes one `mcp.servers.<id>` entry (internal/config):
// either a local subprocess (Command set) or a remote endpoint (URL set,
// scheme selecting HTTP vs WebSocket).
type ServerConfig struct {
	ID         string
	Command    string
	Args       []string
	Env        map[string]string
	URL        string
	AuthHeader string
	Timeout    time.Duration
}

// NewBackend builds the Backend for cfg, dispatching on whether it names a
// local command or a remote URL, and on the URL's scheme for remote
// servers — mirroring the teacher's Server.Initialize/CreateTransportFromURL
// split (internal/tools/mcp/server.go) without the combined Server type,
// since DAEL's Backend interface already carries ListTools/Call directly.
func NewBackend(cfg ServerConfig) (Backend, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	switch {
	case cfg.Command != "":
		return newStdioBackend(cfg)
	case cfg.URL != "":
		scheme, err := urlScheme(cfg.URL)
		if err != nil {
			return nil, err
		}
		switch scheme {
		case "ws", "wss":
			return newWebSocketBackend(cfg, timeout)
		case "http", "https":
			return newHTTPBackend(cfg, timeout)
		default:
			return nil, fmt.Errorf("mcp server %s: unsupported URL scheme %q", cfg.ID, scheme)
		}
	default:
		return nil, fmt.Errorf("mcp server %s: neither command nor url is set", cfg.ID)
	}
}

func urlScheme(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid mcp server url %q: %w", rawURL, err)
	}
	return u.Scheme, nil
}

func descriptorFromMCPTool(t mcpTool, backendID string) Descriptor {
	schema := &jsonschema.Schema{Type: "object"}
	if len(t.InputSchema) > 0 {
		if err := json.Unmarshal(t.InputSchema, schema); err != nil {
			schema = &jsonschema.Schema{Type: "object"}
		}
	}
	return Descriptor{
		Name:        t.Name,
		Description: t.Description,
		Schema:      schema,
		Source:      SourceMCP,
		BackendID:   backendID,
	}
}
