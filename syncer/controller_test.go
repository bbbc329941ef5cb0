package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noelzubin/notes_browser/document"
	"github.com/noelzubin/notes_browser/search"
	"github.com/noelzubin/notes_browser/search/bleve_indexer"
	"github.com/noelzubin/notes_browser/store"
	"github.com/noelzubin/notes_browser/watcher"
)

const scenarioA = "# Intro\n## First\nHello\n## Second\nWorld"

type fixture struct {
	t       *testing.T
	root    string
	store   *store.Store
	ctrl    *Controller
	engine  *search.Engine
	changes []Change
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	root := t.TempDir()
	idx, err := bleve_indexer.NewBleveIndexer(bleve_indexer.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	engine, err := search.NewEngine(idx, search.DefaultOptions())
	require.NoError(t, err)

	if opts.Extensions == nil {
		opts.Extensions = []string{".md"}
	}
	f := &fixture{
		t:      t,
		root:   root,
		store:  store.New(root, document.Parser{}, nil),
		engine: engine,
	}
	f.ctrl = New(f.store, idx, opts)
	f.ctrl.OnChange(func(c Change) { f.changes = append(f.changes, c) })
	return f
}

func (f *fixture) bootstrap() {
	f.t.Helper()
	require.NoError(f.t, f.ctrl.Bootstrap(context.Background()))
}

func (f *fixture) write(name, body string) {
	f.t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(name))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(body), 0o644))
}

func (f *fixture) remove(name string) {
	f.t.Helper()
	require.NoError(f.t, os.Remove(filepath.Join(f.root, filepath.FromSlash(name))))
}

func (f *fixture) apply(kind watcher.EventKind, path string) {
	f.t.Helper()
	require.NoError(f.t, f.ctrl.Apply(watcher.Event{Kind: kind, Path: path}))
}

func (f *fixture) query(q string) []search.Result {
	f.t.Helper()
	results, err := f.engine.Search(context.Background(), q)
	require.NoError(f.t, err)
	return results
}

func (f *fixture) tracked(path string) bool {
	_, ok := f.store.Get(path)
	return ok
}

func TestController_AddThenDelete(t *testing.T) {
	// Given: an empty notes directory
	f := newFixture(t, Options{})
	f.bootstrap()

	// When: a note is added
	f.write("a.md", scenarioA)
	f.apply(watcher.Added, "a.md")

	// Then: it is found in the section holding the word
	results := f.query("hello")
	require.Len(t, results, 1)
	assert.Equal(t, "a.md", results[0].Path)
	assert.Equal(t, "First", results[0].Section)

	// When: it is deleted
	f.remove("a.md")
	f.apply(watcher.Deleted, "a.md")

	// Then: nothing is found
	assert.Empty(t, f.query("hello"))
	assert.False(t, f.tracked("a.md"))
	assert.Equal(t, []ChangeKind{ChangeAdded, ChangeRemoved}, kinds(f.changes))
}

func TestController_Modify(t *testing.T) {
	// Given: a bootstrapped note
	f := newFixture(t, Options{})
	f.write("a.md", scenarioA)
	f.bootstrap()
	require.Len(t, f.query("hello"), 1)

	// When: "Hello" becomes "Goodbye"
	f.write("a.md", "# Intro\n## First\nGoodbye\n## Second\nWorld")
	f.apply(watcher.Modified, "a.md")

	// Then
	assert.Empty(t, f.query("hello"))
	results := f.query("goodbye")
	require.Len(t, results, 1)
	assert.Equal(t, "a.md", results[0].Path)
}

func TestController_EvictOnParseFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.bootstrap()

	f.write("a.md", "# T\n## S\nalphaword\n")
	f.apply(watcher.Added, "a.md")
	require.Len(t, f.query("alphaword"), 1)

	// A version that no longer parses takes the note out.
	f.write("a.md", "text first\n# T\n## S\nalphaword\n")
	f.apply(watcher.Modified, "a.md")
	assert.Empty(t, f.query("alphaword"))
	assert.False(t, f.tracked("a.md"))

	// A fixed version brings it back without the stale words.
	f.write("a.md", "# T\n## S\nbetaword\n")
	f.apply(watcher.Modified, "a.md")
	assert.Empty(t, f.query("alphaword"))
	assert.Len(t, f.query("betaword"), 1)

	assert.Equal(t, []ChangeKind{ChangeAdded, ChangeRemoved, ChangeAdded}, kinds(f.changes))
}

func TestController_KeepOnParseFailure(t *testing.T) {
	f := newFixture(t, Options{OnParseFailure: PolicyKeep})
	f.write("a.md", "# T\n## S\nalphaword\n")
	f.bootstrap()

	f.write("a.md", "# T\n# Again\n")
	f.apply(watcher.Modified, "a.md")

	// The last good version is still listed and searchable, flagged stale.
	assert.True(t, f.tracked("a.md"))
	assert.Len(t, f.query("alphaword"), 1)
	stale, reason := f.store.Stale("a.md")
	assert.True(t, stale)
	assert.ErrorIs(t, reason, document.ErrDuplicateTitle)
	require.Len(t, f.changes, 1)
	assert.Equal(t, ChangeStale, f.changes[0].Kind)
	assert.Equal(t, "T", f.changes[0].Title)

	// Deleting a stale note removes it.
	f.remove("a.md")
	f.apply(watcher.Deleted, "a.md")
	assert.False(t, f.tracked("a.md"))
	assert.Empty(t, f.query("alphaword"))
}

func TestController_RejectedNoteStaysAbsent(t *testing.T) {
	f := newFixture(t, Options{})
	f.bootstrap()

	f.write("bad.md", "Hello\n# Intro")
	f.apply(watcher.Added, "bad.md")

	assert.False(t, f.tracked("bad.md"))
	assert.Empty(t, f.query("hello"))
	assert.Empty(t, f.changes)
}

func TestController_OutOfOrderEvents(t *testing.T) {
	f := newFixture(t, Options{})
	f.bootstrap()

	// Modified for an unknown path adds it.
	f.write("a.md", "# Old title\n## S\nbody\n")
	f.apply(watcher.Modified, "a.md")
	assert.True(t, f.tracked("a.md"))

	// A repeated Added for a known path updates it.
	f.write("a.md", "# New title\n## S\nbody\n")
	f.apply(watcher.Added, "a.md")

	require.Len(t, f.changes, 2)
	assert.Equal(t, ChangeAdded, f.changes[0].Kind)
	assert.Equal(t, ChangeUpdated, f.changes[1].Kind)
	assert.True(t, f.changes[1].TitleChanged())
	assert.Equal(t, "Old title", f.changes[1].OldTitle)
	assert.Equal(t, "New title", f.changes[1].Title)

	// Duplicate deletes are harmless.
	f.remove("a.md")
	f.apply(watcher.Deleted, "a.md")
	f.apply(watcher.Deleted, "a.md")
	f.apply(watcher.Deleted, "never.md")
	assert.Equal(t, []ChangeKind{ChangeAdded, ChangeUpdated, ChangeRemoved}, kinds(f.changes))
}

func TestController_UpdateKeepsTitle(t *testing.T) {
	f := newFixture(t, Options{})
	f.write("a.md", "# Same\n## S\none\n")
	f.bootstrap()

	f.write("a.md", "# Same\n## S\ntwo\n")
	f.apply(watcher.Modified, "a.md")

	require.Len(t, f.changes, 1)
	assert.False(t, f.changes[0].TitleChanged())
}

func TestController_DroppedEvents(t *testing.T) {
	f := newFixture(t, Options{})
	f.bootstrap()

	// Unreadable files and other extensions are ignored.
	f.apply(watcher.Modified, "missing.md")
	f.write("notes.txt", "# T\n## S\nbody\n")
	f.apply(watcher.Added, "notes.txt")

	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.changes)
}

// storeCheckingIndex records whether the store held a path when the index
// was written for it.
type storeCheckingIndex struct {
	search.Index
	store   *store.Store
	tracked map[string]bool
}

func (i *storeCheckingIndex) UpdateDocument(path string, doc *document.Document) error {
	_, i.tracked["update "+path] = i.store.Get(path)
	return i.Index.UpdateDocument(path, doc)
}

func (i *storeCheckingIndex) DeleteDocument(path string) error {
	_, i.tracked["delete "+path] = i.store.Get(path)
	return i.Index.DeleteDocument(path)
}

func TestController_IndexWrittenBeforeStore(t *testing.T) {
	root := t.TempDir()
	bleveIdx, err := bleve_indexer.NewBleveIndexer(bleve_indexer.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bleveIdx.Close() })

	st := store.New(root, document.Parser{}, nil)
	idx := &storeCheckingIndex{Index: bleveIdx, store: st, tracked: map[string]bool{}}
	ctrl := New(st, idx, Options{Extensions: []string{".md"}})
	engine, err := search.NewEngine(bleveIdx, search.Options{CacheSize: -1})
	require.NoError(t, err)

	// Callbacks see both writes.
	var seen []bool
	ctrl.OnChange(func(c Change) {
		hits, err := engine.Search(context.Background(), "hello")
		require.NoError(t, err)
		_, ok := st.Get(c.Path)
		seen = append(seen, ok, len(hits) == 1)
	})
	require.NoError(t, ctrl.Bootstrap(context.Background()))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte(scenarioA), 0o644))

	require.NoError(t, ctrl.Apply(watcher.Event{Kind: watcher.Added, Path: "a.md"}))
	require.NoError(t, os.Remove(filepath.Join(root, "a.md")))
	require.NoError(t, ctrl.Apply(watcher.Event{Kind: watcher.Deleted, Path: "a.md"}))

	assert.False(t, idx.tracked["update a.md"])
	assert.True(t, idx.tracked["delete a.md"])
	assert.Equal(t, []bool{true, true, false, false}, seen)
}

func TestController_ApplyBeforeBootstrap(t *testing.T) {
	f := newFixture(t, Options{})
	f.write("a.md", scenarioA)

	err := f.ctrl.Apply(watcher.Event{Kind: watcher.Added, Path: "a.md"})

	assert.ErrorIs(t, err, search.ErrIndexInconsistent)
	assert.False(t, f.tracked("a.md"))
}

func TestController_Bootstrap(t *testing.T) {
	f := newFixture(t, Options{Recursive: true})
	f.write("a.md", scenarioA)
	f.write("sub/b.md", "# B\n## S\nnested\n")
	f.write("bad.md", "no title here\n")

	f.bootstrap()

	assert.Equal(t, 2, f.store.Len())
	assert.Len(t, f.query("nested"), 1)
	assert.Len(t, f.query("world"), 1)
}

func TestController_Run(t *testing.T) {
	f := newFixture(t, Options{})
	f.bootstrap()
	f.write("a.md", scenarioA)
	f.write("b.md", "# B\n## S\nworld\n")

	events := make(chan watcher.Event, 2)
	events <- watcher.Event{Kind: watcher.Added, Path: "a.md"}
	events <- watcher.Event{Kind: watcher.Added, Path: "b.md"}
	close(events)

	require.NoError(t, f.ctrl.Run(context.Background(), events))
	assert.Len(t, f.query("world"), 2)
}

func TestController_RunStopsOnIndexError(t *testing.T) {
	f := newFixture(t, Options{})
	f.write("a.md", scenarioA)

	events := make(chan watcher.Event, 1)
	events <- watcher.Event{Kind: watcher.Added, Path: "a.md"}

	err := f.ctrl.Run(context.Background(), events)

	assert.ErrorIs(t, err, search.ErrIndexInconsistent)
}

func TestController_RunCancelled(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.ctrl.Run(ctx, make(chan watcher.Event))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestController_Reconcile(t *testing.T) {
	// Given: a bootstrapped directory
	f := newFixture(t, Options{})
	f.write("keep.md", "# Keep\n## S\nsteady\n")
	f.write("change.md", "# Change\n## S\nbefore\n")
	f.write("gone.md", "# Gone\n## S\nvanishing\n")
	f.bootstrap()

	// When: files change while nothing is watching
	f.write("change.md", "# Change\n## S\nafter\n")
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(f.root, "change.md"), later, later))
	f.remove("gone.md")
	f.write("new.md", "# New\n## S\nfresh\n")

	applied, err := f.ctrl.Reconcile(context.Background())

	// Then
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Empty(t, f.query("before"))
	assert.Len(t, f.query("after"), 1)
	assert.Empty(t, f.query("vanishing"))
	assert.Len(t, f.query("fresh"), 1)
	assert.Len(t, f.query("steady"), 1)

	// Nothing left to do.
	applied, err = f.ctrl.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestPolicy(t *testing.T) {
	assert.True(t, PolicyEvict.Valid())
	assert.True(t, PolicyKeep.Valid())
	assert.False(t, Policy("ignore").Valid())

	c := New(store.New(t.TempDir(), document.Parser{}, nil), nil, Options{})
	assert.Equal(t, PolicyEvict, c.opts.OnParseFailure)
}

func kinds(changes []Change) []ChangeKind {
	out := make([]ChangeKind, len(changes))
	for i, c := range changes {
		out[i] = c.Kind
	}
	return out
}
