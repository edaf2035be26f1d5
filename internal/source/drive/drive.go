// Package drive implements the Google Drive source connector.
//
// Regular files are downloaded as-is; Google Workspace files have no
// byte representation and are exported (Docs and Slides to plain text,
// Sheets to CSV) before indexing.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/answerdeck/answerdeck/internal/normalize"
	"github.com/answerdeck/answerdeck/internal/source"
)

// Google Workspace MIME types.
const (
	mimeGoogleDoc    = "application/vnd.google-apps.document"
	mimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	mimeGoogleSlides = "application/vnd.google-apps.presentation"
	mimeFolder       = "application/vnd.google-apps.folder"
)

// maxFetchSize bounds a single file download (5 MB).
const maxFetchSize = 5 * 1024 * 1024

const listFields = "nextPageToken, files(id, name, mimeType, modifiedTime)"

// Connector lists and fetches files from one Drive folder.
type Connector struct {
	svc      *drive.Service
	folderID string
	logger   *slog.Logger
}

// New creates a Drive connector scoped to folderID. An empty folderID
// lists everything the credentials can see.
func New(svc *drive.Service, folderID string, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{svc: svc, folderID: folderID, logger: logger}
}

// NewService creates a Drive API client using Application Default
// Credentials (GOOGLE_APPLICATION_CREDENTIALS or ambient credentials).
func NewService(ctx context.Context) (*drive.Service, error) {
	svc, err := drive.NewService(ctx, option.WithScopes(drive.DriveReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return svc, nil
}

// NewServiceWithToken creates a Drive API client from a static OAuth
// access token, for setups that manage token refresh themselves.
func NewServiceWithToken(ctx context.Context, accessToken string) (*drive.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return svc, nil
}

// Name implements source.Connector.
func (c *Connector) Name() string { return "drive" }

// List enumerates non-trashed files in the configured folder.
func (c *Connector) List(ctx context.Context) ([]source.Item, error) {
	query := "trashed = false"
	if c.folderID != "" {
		query = fmt.Sprintf("'%s' in parents and trashed = false", c.folderID)
	}

	var items []source.Item
	pageToken := ""
	for {
		call := c.svc.Files.List().
			Q(query).
			Fields(listFields).
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		page, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("%w: listing drive files: %v", source.ErrUnavailable, err)
		}

		for _, f := range page.Files {
			if f.MimeType == mimeFolder {
				continue
			}
			items = append(items, source.Item{
				ID:       f.Id,
				Name:     f.Name,
				Format:   formatFor(f.MimeType, f.Name),
				Modified: parseModified(f.ModifiedTime),
			})
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	c.logger.Debug("listed drive folder", "folder_id", c.folderID, "items", len(items))
	return items, nil
}

// Fetch downloads a file's content, exporting Google Workspace files to
// a text representation.
func (c *Connector) Fetch(ctx context.Context, id string) ([]byte, error) {
	meta, err := c.svc.Files.Get(id).Fields("id, name, mimeType").Context(ctx).Do()
	if err != nil {
		return nil, c.fetchError(id, err)
	}

	var body io.ReadCloser

	switch meta.MimeType {
	case mimeGoogleDoc, mimeGoogleSlides:
		r, err := c.svc.Files.Export(id, "text/plain").Context(ctx).Download()
		if err != nil {
			return nil, c.fetchError(id, err)
		}
		body = r.Body
	case mimeGoogleSheet:
		r, err := c.svc.Files.Export(id, "text/csv").Context(ctx).Download()
		if err != nil {
			return nil, c.fetchError(id, err)
		}
		body = r.Body
	default:
		r, err := c.svc.Files.Get(id).Context(ctx).Download()
		if err != nil {
			return nil, c.fetchError(id, err)
		}
		body = r.Body
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxFetchSize))
	if err != nil {
		return nil, fmt.Errorf("reading drive file %q: %w", id, err)
	}
	return data, nil
}

// fetchError maps Drive API errors to the connector error taxonomy.
func (c *Connector) fetchError(id string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 404 {
		return fmt.Errorf("%w: drive file %q", source.ErrNotFound, id)
	}
	return fmt.Errorf("%w: fetching drive file %q: %v", source.ErrUnavailable, id, err)
}

// formatFor maps Drive MIME types to document formats. Workspace files
// are reported in their export format.
func formatFor(mimeType, name string) normalize.Format {
	switch mimeType {
	case mimeGoogleDoc, mimeGoogleSlides:
		return normalize.FormatText
	case mimeGoogleSheet:
		return normalize.FormatCSV
	}
	if f := normalize.FormatFromName(name); f != normalize.FormatUnknown {
		return f
	}
	switch mimeType {
	case "text/html":
		return normalize.FormatHTML
	case "text/csv":
		return normalize.FormatCSV
	case "application/pdf":
		return normalize.FormatPDF
	case "text/markdown":
		return normalize.FormatMarkdown
	}
	return normalize.FormatUnknown
}

// parseModified parses the RFC 3339 modifiedTime Drive reports.
func parseModified(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
