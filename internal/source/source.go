// Package source defines the connector contract for external document
// sources.
//
// A connector enumerates the items currently visible in its source and
// fetches their raw bytes on demand. Connectors never decide what needs
// re-indexing; change detection belongs to the sync engine.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/answerdeck/answerdeck/internal/normalize"
)

// ErrUnavailable indicates the source cannot be reached right now
// (network failure, expired credentials, provider outage). The sync
// engine treats it as a source-level error: nothing is removed from the
// index and previously indexed content keeps serving answers.
var ErrUnavailable = errors.New("source unavailable")

// ErrNotFound indicates a previously listed item has disappeared from
// the source between List and Fetch.
var ErrNotFound = errors.New("source item not found")

// Item is one document visible in a source.
type Item struct {
	// ID is the connector-local identifier (file ID, path, URL).
	ID string

	// Name is the human-readable item name used in citations.
	Name string

	// Format is the detected document format.
	Format normalize.Format

	// Modified is the provider-reported modification time; zero when
	// the provider does not expose one.
	Modified time.Time
}

// Connector enumerates and fetches documents from one external source.
// Implementations must be safe for use from a single sync goroutine;
// they are not required to support concurrent calls.
type Connector interface {
	// Name returns the connector identifier used to namespace item IDs
	// (e.g. "drive", "dropbox", "web").
	Name() string

	// List enumerates the items currently visible in the source.
	List(ctx context.Context) ([]Item, error)

	// Fetch returns the raw content of an item by its connector-local ID.
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// QualifiedID returns the globally unique identifier for an item of a
// given connector, e.g. "drive:1a2b3c".
func QualifiedID(connector, itemID string) string {
	return connector + ":" + itemID
}
