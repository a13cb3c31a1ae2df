package state

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"modelwatch/internal/catalog"
	logx "modelwatch/pkg/logx"
)

func newFileStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st, path
}

func sampleState() *State {
	st := NewState()
	st.Snapshots["arena"] = Snapshot{Models: []catalog.Model{
		{ID: "m2", Name: "Second"},
		{ID: "m1", Name: "First"},
	}}
	st.Chats = []int64{42, -100200}
	st.Tags = map[string]string{"m1": "flagged"}
	return st
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	want := sampleState()
	if err := store.Save(ctx, want.clone()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := store.Load(ctx)
	if !reflect.DeepEqual(got.Snapshots, want.Snapshots) {
		t.Fatalf("snapshots: got %+v want %+v", got.Snapshots, want.Snapshots)
	}
	// Chats are kept sorted on save.
	if !reflect.DeepEqual(got.Chats, []int64{-100200, 42}) {
		t.Fatalf("chats: %v", got.Chats)
	}
	if !reflect.DeepEqual(got.Tags, want.Tags) {
		t.Fatalf("tags: %v", got.Tags)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store, _ := newFileStore(t)
	st := store.Load(context.Background())
	if len(st.Snapshots) != 0 || len(st.Chats) != 0 || len(st.Tags) != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

func TestFileStoreCorruptFileIsEmpty(t *testing.T) {
	store, path := newFileStore(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st := store.Load(context.Background())
	if len(st.Snapshots) != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

// A crash between temp write and rename leaves a stale .tmp file; the prior
// committed document must still load.
func TestFileStoreStaleTempDoesNotCorrupt(t *testing.T) {
	store, path := newFileStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(path+".tmp", []byte("partial write gar"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := store.Load(ctx)
	if len(got.Snapshots["arena"].Models) != 2 {
		t.Fatalf("prior state lost: %+v", got)
	}
}

func TestFileStoreSaveCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "state.json")
	store, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Save(context.Background(), NewState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat: %v", err)
	}
}

func TestFileStoreSaveIdempotent(t *testing.T) {
	store, path := newFileStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleState()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := store.Save(ctx, store.Load(ctx)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("save/load/save not byte-stable:\n%s\nvs\n%s", first, second)
	}
}
