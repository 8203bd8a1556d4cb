// Package audit persists the records of a run at run end. Stores are
// append-only.
package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/AndreyAkinshin/fleetbuild/internal/record"
)

// Store persists the records of one run.
type Store interface {
	Persist(ctx context.Context, runID string, records []record.Record) error
	Close() error
}

// Open returns the store addressed by addr:
//
//	""                         file store at defaultPath
//	/path/record.log           file store
//	file:///path/record.log    file store
//	redis://host:6379/0        redis store
//	postgres://user@host/db    postgres store
func Open(ctx context.Context, addr, defaultPath string) (Store, error) {
	if addr == "" {
		return NewFileStore(defaultPath), nil
	}
	if !strings.Contains(addr, "://") {
		return NewFileStore(addr), nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid audit store %q: %w", addr, err)
	}
	switch u.Scheme {
	case "file":
		return NewFileStore(u.Path), nil
	case "redis", "rediss":
		return NewRedisStore(ctx, addr)
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, addr)
	default:
		return nil, fmt.Errorf("unsupported audit store scheme %q", u.Scheme)
	}
}
