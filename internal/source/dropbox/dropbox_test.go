package dropbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"

	"github.com/answerdeck/answerdeck/internal/log"
	"github.com/answerdeck/answerdeck/internal/normalize"
	"github.com/answerdeck/answerdeck/internal/source"
)

type fakeClient struct {
	pages    []*files.ListFolderResult
	pageIdx  int
	listErr  error
	contents map[string][]byte
	fetchErr error
}

func (f *fakeClient) ListFolder(*files.ListFolderArg) (*files.ListFolderResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.pageIdx = 1
	return f.pages[0], nil
}

func (f *fakeClient) ListFolderContinue(*files.ListFolderContinueArg) (*files.ListFolderResult, error) {
	page := f.pages[f.pageIdx]
	f.pageIdx++
	return page, nil
}

func (f *fakeClient) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	if f.fetchErr != nil {
		return nil, nil, f.fetchErr
	}
	data, ok := f.contents[arg.Path]
	if !ok {
		return nil, nil, errors.New("path/not_found/")
	}
	return &files.FileMetadata{}, io.NopCloser(bytes.NewReader(data)), nil
}

func fileEntry(name, pathLower string, modified time.Time) files.IsMetadata {
	meta := &files.FileMetadata{ServerModified: modified}
	meta.Name = name
	meta.PathLower = pathLower
	meta.PathDisplay = pathLower
	return meta
}

func folderEntry(name string) files.IsMetadata {
	meta := &files.FolderMetadata{}
	meta.Name = name
	return meta
}

func TestListPaginatesAndSkipsFolders(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{
		pages: []*files.ListFolderResult{
			{
				Entries: []files.IsMetadata{
					fileEntry("faq.md", "/docs/faq.md", modified),
					folderEntry("archive"),
				},
				Cursor:  "cursor-1",
				HasMore: true,
			},
			{
				Entries: []files.IsMetadata{
					fileEntry("pricing.csv", "/docs/pricing.csv", modified),
				},
				HasMore: false,
			},
		},
	}

	c := New(client, "/docs", log.NewNop())
	items, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List() = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "/docs/faq.md" || items[0].Format != normalize.FormatMarkdown {
		t.Errorf("item 0 = %+v", items[0])
	}
	if items[1].ID != "/docs/pricing.csv" || items[1].Format != normalize.FormatCSV {
		t.Errorf("item 1 = %+v", items[1])
	}
	if !items[0].Modified.Equal(modified) {
		t.Errorf("modified = %v, want %v", items[0].Modified, modified)
	}
}

func TestListUnavailable(t *testing.T) {
	client := &fakeClient{listErr: errors.New("expired_access_token/")}

	c := New(client, "", log.NewNop())
	_, err := c.List(context.Background())
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("List() = %v, want ErrUnavailable", err)
	}
}

func TestFetch(t *testing.T) {
	client := &fakeClient{contents: map[string][]byte{
		"/docs/faq.md": []byte("# FAQ\n"),
	}}

	c := New(client, "/docs", log.NewNop())
	data, err := c.Fetch(context.Background(), "/docs/faq.md")
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if string(data) != "# FAQ\n" {
		t.Errorf("data = %q", data)
	}
}

func TestFetchNotFound(t *testing.T) {
	client := &fakeClient{contents: map[string][]byte{}}

	c := New(client, "", log.NewNop())
	_, err := c.Fetch(context.Background(), "/gone.txt")
	if !errors.Is(err, source.ErrNotFound) {
		t.Fatalf("Fetch() = %v, want ErrNotFound", err)
	}
}

func TestNormalizeFolder(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"/", ""},
		{"docs", "/docs"},
		{"/docs/", "/docs"},
		{" /team docs ", "/team docs"},
	}
	for _, tt := range tests {
		if got := normalizeFolder(tt.in); got != tt.want {
			t.Errorf("normalizeFolder(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
