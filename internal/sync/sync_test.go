package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/answerdeck/answerdeck/internal/chunk"
	"github.com/answerdeck/answerdeck/internal/knowledge"
	"github.com/answerdeck/answerdeck/internal/log"
	"github.com/answerdeck/answerdeck/internal/normalize"
	"github.com/answerdeck/answerdeck/internal/source"
)

type fakeConnector struct {
	name     string
	items    []source.Item
	contents map[string][]byte
	listErr  error
	fetchErr map[string]error
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) List(context.Context) ([]source.Item, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items, nil
}

func (f *fakeConnector) Fetch(_ context.Context, id string) ([]byte, error) {
	if err := f.fetchErr[id]; err != nil {
		return nil, err
	}
	data, ok := f.contents[id]
	if !ok {
		return nil, source.ErrNotFound
	}
	return data, nil
}

type fakeIndexer struct {
	docs      map[string]knowledge.Document
	addErrFor string
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{docs: make(map[string]knowledge.Document)}
}

func (f *fakeIndexer) AddAll(_ context.Context, docs []knowledge.Document, _ int) (int, []knowledge.AddFailure) {
	var failures []knowledge.AddFailure
	added := 0
	for _, doc := range docs {
		if f.addErrFor != "" && strings.Contains(doc.ID, f.addErrFor) {
			failures = append(failures, knowledge.AddFailure{ID: doc.ID, Err: errors.New("embed failed")})
			continue
		}
		f.docs[doc.ID] = doc
		added++
	}
	return added, failures
}

func (f *fakeIndexer) DeleteBySource(_ context.Context, sourceID string) (int, error) {
	deleted := 0
	for id, doc := range f.docs {
		if doc.Metadata[knowledge.MetaSourceID] == sourceID {
			delete(f.docs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeIndexer) countBySource(sourceID string) int {
	n := 0
	for _, doc := range f.docs {
		if doc.Metadata[knowledge.MetaSourceID] == sourceID {
			n++
		}
	}
	return n
}

type memLog struct {
	hashes map[string]string
}

func newMemLog() *memLog { return &memLog{hashes: make(map[string]string)} }

func (m *memLog) LastHash(_ context.Context, sourceID string) (string, error) {
	return m.hashes[sourceID], nil
}

func (m *memLog) Record(_ context.Context, sourceID, hash string) error {
	m.hashes[sourceID] = hash
	return nil
}

func (m *memLog) Forget(_ context.Context, sourceID string) error {
	delete(m.hashes, sourceID)
	return nil
}

func newOrchestrator(t *testing.T, conns []source.Connector, idx Indexer, plog ProcessedLog) *Orchestrator {
	t.Helper()
	splitter, err := chunk.NewSplitter(800, 100)
	if err != nil {
		t.Fatal(err)
	}
	normalizer := normalize.New(nil, log.NewNop())
	return New(conns, normalizer, splitter, idx, plog, 100, log.NewNop())
}

func TestRunIndexesNewItems(t *testing.T) {
	conn := &fakeConnector{
		name: "drive",
		items: []source.Item{
			{ID: "f1", Name: "handbook.txt", Format: normalize.FormatText},
			{ID: "f2", Name: "faq.txt", Format: normalize.FormatText},
		},
		contents: map[string][]byte{
			"f1": []byte("Support hours are 9 to 5."),
			"f2": []byte("Refunds take five business days."),
		},
	}
	idx := newFakeIndexer()
	plog := newMemLog()

	summary, err := newOrchestrator(t, []source.Connector{conn}, idx, plog).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if summary.Added != 2 || summary.Skipped != 0 || len(summary.Failed) != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := idx.countBySource("drive:f1"); got != 1 {
		t.Errorf("drive:f1 has %d chunks, want 1", got)
	}
	if plog.hashes["drive:f1"] == "" {
		t.Error("fingerprint not recorded after successful index")
	}
}

func TestRunSkipsUnchangedItems(t *testing.T) {
	conn := &fakeConnector{
		name:     "drive",
		items:    []source.Item{{ID: "f1", Name: "a.txt", Format: normalize.FormatText}},
		contents: map[string][]byte{"f1": []byte("stable content")},
	}
	idx := newFakeIndexer()
	plog := newMemLog()
	orch := newOrchestrator(t, []source.Connector{conn}, idx, plog)

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 0 || summary.Skipped != 1 {
		t.Errorf("second run summary = %+v, want 1 skipped", summary)
	}
}

func TestRunReindexesChangedItems(t *testing.T) {
	conn := &fakeConnector{
		name:     "drive",
		items:    []source.Item{{ID: "f1", Name: "a.txt", Format: normalize.FormatText}},
		contents: map[string][]byte{"f1": []byte("version one")},
	}
	idx := newFakeIndexer()
	plog := newMemLog()
	orch := newOrchestrator(t, []source.Connector{conn}, idx, plog)

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	conn.contents["f1"] = []byte("version two, now much longer")
	summary, err := orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 1 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := idx.countBySource("drive:f1"); got != 1 {
		t.Errorf("stale chunks survived re-index: %d chunks", got)
	}
	for _, doc := range idx.docs {
		if !strings.Contains(doc.Content, "version two") {
			t.Errorf("old content still indexed: %q", doc.Content)
		}
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	conn := &fakeConnector{
		name: "drive",
		items: []source.Item{
			{ID: "bad", Name: "bad.txt", Format: normalize.FormatText},
			{ID: "good", Name: "good.txt", Format: normalize.FormatText},
		},
		contents: map[string][]byte{"good": []byte("usable content")},
		fetchErr: map[string]error{"bad": errors.New("read timeout")},
	}
	idx := newFakeIndexer()

	summary, err := newOrchestrator(t, []source.Connector{conn}, idx, newMemLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 1 {
		t.Errorf("good item not indexed: %+v", summary)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].SourceID != "drive:bad" {
		t.Errorf("failures = %+v", summary.Failed)
	}
}

func TestRunSourceErrorLeavesIndexUntouched(t *testing.T) {
	healthy := &fakeConnector{
		name:     "dropbox",
		items:    []source.Item{{ID: "/a.txt", Name: "a.txt", Format: normalize.FormatText}},
		contents: map[string][]byte{"/a.txt": []byte("dropbox content")},
	}
	down := &fakeConnector{name: "drive", listErr: source.ErrUnavailable}

	idx := newFakeIndexer()
	idx.docs["drive:old::chunk-0"] = knowledge.Document{
		ID:       "drive:old::chunk-0",
		Content:  "previously indexed",
		Metadata: map[string]string{knowledge.MetaSourceID: "drive:old"},
	}

	summary, err := newOrchestrator(t, []source.Connector{down, healthy}, idx, newMemLog()).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(summary.SourceErrors["drive"], source.ErrUnavailable) {
		t.Errorf("SourceErrors = %+v", summary.SourceErrors)
	}
	if summary.Added != 1 {
		t.Errorf("healthy source not synced: %+v", summary)
	}
	if idx.countBySource("drive:old") != 1 {
		t.Error("unavailable source lost previously indexed content")
	}
}

func TestRunRemovesVanishedItems(t *testing.T) {
	conn := &fakeConnector{
		name:     "drive",
		items:    []source.Item{{ID: "gone", Name: "gone.txt", Format: normalize.FormatText}},
		contents: map[string][]byte{},
	}
	idx := newFakeIndexer()
	idx.docs["drive:gone::chunk-0"] = knowledge.Document{
		ID:       "drive:gone::chunk-0",
		Metadata: map[string]string{knowledge.MetaSourceID: "drive:gone"},
	}
	plog := newMemLog()
	plog.hashes["drive:gone"] = "oldhash"

	summary, err := newOrchestrator(t, []source.Connector{conn}, idx, plog).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Removed != 1 {
		t.Errorf("summary = %+v, want 1 removed", summary)
	}
	if idx.countBySource("drive:gone") != 0 {
		t.Error("vanished item still indexed")
	}
	if _, ok := plog.hashes["drive:gone"]; ok {
		t.Error("vanished item fingerprint not forgotten")
	}
}

func TestRunTreatsNoContentAsSkip(t *testing.T) {
	conn := &fakeConnector{
		name:     "drive",
		items:    []source.Item{{ID: "blank", Name: "blank.txt", Format: normalize.FormatText}},
		contents: map[string][]byte{"blank": []byte("   \n\n  ")},
	}
	idx := newFakeIndexer()
	idx.docs["drive:blank::chunk-0"] = knowledge.Document{
		ID:       "drive:blank::chunk-0",
		Content:  "old version with text",
		Metadata: map[string]string{knowledge.MetaSourceID: "drive:blank"},
	}
	plog := newMemLog()

	summary, err := newOrchestrator(t, []source.Connector{conn}, idx, plog).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 || len(summary.Failed) != 0 {
		t.Fatalf("summary = %+v, want 1 skipped and no failures", summary)
	}
	if idx.countBySource("drive:blank") != 0 {
		t.Error("stale chunks survived after content became empty")
	}
	if plog.hashes["drive:blank"] == "" {
		t.Error("fingerprint not recorded; empty item would re-parse every run")
	}
}

func TestRunPartialIndexKeepsItemRetryable(t *testing.T) {
	conn := &fakeConnector{
		name:     "drive",
		items:    []source.Item{{ID: "f1", Name: "a.txt", Format: normalize.FormatText}},
		contents: map[string][]byte{"f1": []byte("content that fails to embed")},
	}
	idx := newFakeIndexer()
	idx.addErrFor = "drive:f1"
	plog := newMemLog()

	summary, err := newOrchestrator(t, []source.Connector{conn}, idx, plog).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 0 || len(summary.Failed) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if plog.hashes["drive:f1"] != "" {
		t.Error("fingerprint recorded despite index failure; item would never retry")
	}
}

func TestRunTagsChunksWithProvenance(t *testing.T) {
	conn := &fakeConnector{
		name:     "web",
		items:    []source.Item{{ID: "https://example.com/faq", Name: "https://example.com/faq", Format: normalize.FormatText}},
		contents: map[string][]byte{"https://example.com/faq": []byte("answers live here")},
	}
	idx := newFakeIndexer()

	if _, err := newOrchestrator(t, []source.Connector{conn}, idx, newMemLog()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, doc := range idx.docs {
		if doc.Metadata[knowledge.MetaConnector] != "web" {
			t.Errorf("connector metadata = %q", doc.Metadata[knowledge.MetaConnector])
		}
		if doc.Metadata[knowledge.MetaSourceID] != "web:https://example.com/faq" {
			t.Errorf("source_id metadata = %q", doc.Metadata[knowledge.MetaSourceID])
		}
		if doc.Metadata[knowledge.MetaSourceName] != "https://example.com/faq" {
			t.Errorf("source_name metadata = %q", doc.Metadata[knowledge.MetaSourceName])
		}
	}
}
