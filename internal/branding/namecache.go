package branding

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/agentx-labs/forksync/internal/shell"
)

// NameResolver looks up the display name of the current user.
type NameResolver func(ctx context.Context) (string, error)

// NameCache memoizes the resolved user display name. Callers own the cache
// and pass it by reference; Reset drops the cached value so the next Get
// resolves again.
type NameCache struct {
	resolve NameResolver

	mu       sync.Mutex
	name     string
	resolved bool
}

// NewNameCache returns a cache backed by resolve.
func NewNameCache(resolve NameResolver) *NameCache {
	return &NameCache{resolve: resolve}
}

// Get returns the cached name, resolving it on first use. A failed lookup
// yields "" and is not cached.
func (c *NameCache) Get(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.name
	}
	if c.resolve == nil {
		return ""
	}
	name, err := c.resolve(ctx)
	if err != nil {
		return ""
	}
	c.name = strings.TrimSpace(name)
	c.resolved = true
	return c.name
}

// Reset invalidates the cached name.
func (c *NameCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = ""
	c.resolved = false
}

// GitUserResolver resolves the name from `git config user.name` in dir,
// falling back to $USER.
func GitUserResolver(r shell.Runner, dir string) NameResolver {
	return func(ctx context.Context) (string, error) {
		name, err := shell.Output(ctx, r, shell.Command{
			Dir:  dir,
			Name: "git",
			Args: []string{"config", "user.name"},
		})
		if err == nil && name != "" {
			return name, nil
		}
		if u := os.Getenv("USER"); u != "" {
			return u, nil
		}
		return "", err
	}
}
