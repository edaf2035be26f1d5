// Package dropbox implements the Dropbox source connector on top of the
// official v6 SDK.
package dropbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/answerdeck/answerdeck/internal/normalize"
	"github.com/answerdeck/answerdeck/internal/source"
)

// maxFetchSize bounds a single file download (5 MB).
const maxFetchSize = 5 * 1024 * 1024

// Client is the subset of the Dropbox files API the connector uses.
// Satisfied by files.Client; tests substitute a fake.
type Client interface {
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
}

// Connector lists and fetches files from one Dropbox folder.
type Connector struct {
	client Client
	folder string
	logger *slog.Logger
}

// New creates a Dropbox connector rooted at folder. An empty folder
// means the account root. The item ID is the lowercased Dropbox path,
// which is stable across renames of letter case only.
func New(client Client, folder string, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{client: client, folder: normalizeFolder(folder), logger: logger}
}

// NewWithToken creates a connector using an OAuth access token.
func NewWithToken(token, folder string, logger *slog.Logger) *Connector {
	client := files.New(dropbox.Config{Token: token, LogLevel: dropbox.LogOff})
	return New(client, folder, logger)
}

// Name implements source.Connector.
func (c *Connector) Name() string { return "dropbox" }

// List enumerates files under the configured folder, recursively,
// following the cursor until the listing is complete.
func (c *Connector) List(ctx context.Context) ([]source.Item, error) {
	arg := files.NewListFolderArg(c.folder)
	arg.Recursive = true

	res, err := c.client.ListFolder(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: listing dropbox folder %q: %v", source.ErrUnavailable, c.folder, err)
	}

	var items []source.Item
	for {
		items = append(items, entriesToItems(res.Entries)...)
		if !res.HasMore {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err = c.client.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, fmt.Errorf("%w: continuing dropbox listing: %v", source.ErrUnavailable, err)
		}
	}

	c.logger.Debug("listed dropbox folder", "folder", c.folder, "items", len(items))
	return items, nil
}

// Fetch downloads a file by its Dropbox path.
func (c *Connector) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, body, err := c.client.Download(files.NewDownloadArg(id))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: dropbox file %q", source.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: downloading dropbox file %q: %v", source.ErrUnavailable, id, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxFetchSize))
	if err != nil {
		return nil, fmt.Errorf("reading dropbox file %q: %w", id, err)
	}
	return data, nil
}

func entriesToItems(entries []files.IsMetadata) []source.Item {
	var items []source.Item
	for _, entry := range entries {
		meta, ok := entry.(*files.FileMetadata)
		if !ok {
			// Folders and deleted entries carry no content.
			continue
		}
		items = append(items, source.Item{
			ID:       meta.PathLower,
			Name:     meta.Name,
			Format:   normalize.FormatFromName(meta.Name),
			Modified: meta.ServerModified,
		})
	}
	return items
}

// isNotFound detects the SDK's path lookup errors. The typed errors are
// per-endpoint, so matching the error summary is the practical option.
func isNotFound(err error) bool {
	s := err.Error()
	return strings.Contains(s, "not_found") || strings.Contains(s, "path/not_found")
}

// normalizeFolder makes the folder argument acceptable to the API:
// the root is "", and every other path starts with "/".
func normalizeFolder(folder string) string {
	folder = strings.TrimSpace(folder)
	if folder == "" || folder == "/" {
		return ""
	}
	if !strings.HasPrefix(folder, "/") {
		folder = "/" + folder
	}
	return strings.TrimRight(folder, "/")
}
