package branding

import (
	"fmt"
	"strings"
)

// Namespace maps upstream contribution ids (commands, views, chat
// participants) into the fork's id space.
type Namespace struct {
	Upstream string `yaml:"upstream"`
	Fork     string `yaml:"fork"`
}

// Validate checks that both prefixes are set and distinct.
func (n Namespace) Validate() error {
	if n.Upstream == "" || n.Fork == "" {
		return fmt.Errorf("namespace.upstream and namespace.fork are required")
	}
	if n.Upstream == n.Fork {
		return fmt.Errorf("namespace.fork must differ from namespace.upstream")
	}
	return nil
}

// ID joins suffix onto the fork prefix: ID("newChat") → "nimbus.chat.newChat".
func (n Namespace) ID(suffix string) string {
	suffix = strings.TrimPrefix(suffix, ".")
	if suffix == "" {
		return n.Fork
	}
	return n.Fork + "." + suffix
}

// Owns reports whether id lives in the fork namespace.
func (n Namespace) Owns(id string) bool {
	return hasSegmentPrefix(id, n.Fork)
}

// Rebrand moves an upstream id into the fork namespace. Ids outside the
// upstream namespace, and ids already rebranded, are returned unchanged.
func (n Namespace) Rebrand(id string) string {
	if n.Owns(id) || !hasSegmentPrefix(id, n.Upstream) {
		return id
	}
	return n.Fork + strings.TrimPrefix(id, n.Upstream)
}

// hasSegmentPrefix matches prefix on a dotted-segment boundary so that
// "github.copilotx.foo" is not treated as part of "github.copilot".
func hasSegmentPrefix(id, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(id, prefix) {
		return false
	}
	rest := id[len(prefix):]
	return rest == "" || strings.HasPrefix(rest, ".")
}
