package commands

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"modelwatch/internal/catalog"
	"modelwatch/internal/state"
	"modelwatch/internal/transport"
	"modelwatch/internal/watcher"
	logx "modelwatch/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	f.sends = append(f.sends, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) last(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		t.Fatalf("no reply sent")
	}
	return f.sends[len(f.sends)-1]
}

func newTestRouter(t *testing.T) (*Router, *fakeAdapter, *state.Manager) {
	t.Helper()
	store, err := state.Open(state.Config{Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	states := state.NewManager(context.Background(), store, logx.Nop())
	ad := &fakeAdapter{}
	w := watcher.New(states, nil, logx.Nop())
	r := NewRouter(ad, states, w, []int64{100}, logx.Nop())
	return r, ad, states
}

func msg(chatID, fromID int64, text string) transport.Update {
	return transport.Update{Message: &transport.Message{ChatID: chatID, FromID: fromID, Text: text}}
}

func TestStartSubscribes(t *testing.T) {
	r, ad, states := newTestRouter(t)
	ctx := context.Background()

	r.routeUpdate(ctx, msg(5, 1, "/start"))
	if !strings.Contains(ad.last(t), "Subscribed") {
		t.Fatalf("reply = %q", ad.last(t))
	}
	if got := states.Chats(); len(got) != 1 || got[0] != 5 {
		t.Fatalf("chats = %v", got)
	}
}

func TestStopDistinguishesUnsubscribed(t *testing.T) {
	r, ad, _ := newTestRouter(t)
	ctx := context.Background()

	r.routeUpdate(ctx, msg(5, 1, "/stop"))
	if !strings.Contains(ad.last(t), "not subscribed") {
		t.Fatalf("reply = %q", ad.last(t))
	}

	r.routeUpdate(ctx, msg(5, 1, "/start"))
	r.routeUpdate(ctx, msg(5, 1, "/stop"))
	if !strings.Contains(ad.last(t), "Unsubscribed") {
		t.Fatalf("reply = %q", ad.last(t))
	}
}

func TestTagRequiresAdmin(t *testing.T) {
	r, ad, states := newTestRouter(t)
	ctx := context.Background()

	r.routeUpdate(ctx, msg(5, 1, "/tag model-x watch this"))
	if !strings.Contains(ad.last(t), "Unauthorized") {
		t.Fatalf("reply = %q", ad.last(t))
	}
	if len(states.Tags()) != 0 {
		t.Fatalf("tag applied by non-admin")
	}

	r.routeUpdate(ctx, msg(5, 100, "/tag model-x watch this"))
	if !strings.Contains(ad.last(t), "Tagged") {
		t.Fatalf("reply = %q", ad.last(t))
	}
	if got := states.Tags().Lookup(catalog.Model{ID: "model-x"}); got != "watch this" {
		t.Fatalf("tag = %q", got)
	}

	r.routeUpdate(ctx, msg(5, 100, "/untag model-x"))
	if !strings.Contains(ad.last(t), "Untagged") {
		t.Fatalf("reply = %q", ad.last(t))
	}
	r.routeUpdate(ctx, msg(5, 100, "/untag model-x"))
	if !strings.Contains(ad.last(t), "No tag") {
		t.Fatalf("reply = %q", ad.last(t))
	}
}

func TestStatusShowsSnapshot(t *testing.T) {
	r, ad, states := newTestRouter(t)
	ctx := context.Background()

	r.routeUpdate(ctx, msg(5, 1, "/status arena"))
	if !strings.Contains(ad.last(t), "No snapshot") {
		t.Fatalf("reply = %q", ad.last(t))
	}

	if err := states.SetSnapshot(ctx, "arena", []catalog.Model{
		{ID: "b", Name: "Beta"},
		{ID: "a", Name: "Alpha"},
	}); err != nil {
		t.Fatalf("SetSnapshot: %v", err)
	}

	r.routeUpdate(ctx, msg(5, 1, "/status arena"))
	reply := ad.last(t)
	if !strings.Contains(reply, "2 models") {
		t.Fatalf("reply = %q", reply)
	}
	// Listing is sorted by display name.
	if strings.Index(reply, "Alpha") > strings.Index(reply, "Beta") {
		t.Fatalf("reply not sorted: %q", reply)
	}
}

func TestCommandSuffixAndUnknown(t *testing.T) {
	r, ad, _ := newTestRouter(t)
	ctx := context.Background()

	// Group chats address the bot as /cmd@botname.
	r.routeUpdate(ctx, msg(5, 1, "/help@modelwatch_bot"))
	if !strings.Contains(ad.last(t), "/status") {
		t.Fatalf("reply = %q", ad.last(t))
	}

	r.routeUpdate(ctx, msg(5, 1, "/frobnicate"))
	if !strings.Contains(ad.last(t), "Unknown command") {
		t.Fatalf("reply = %q", ad.last(t))
	}

	// Plain chatter is ignored, not answered.
	before := len(ad.sends)
	r.routeUpdate(ctx, msg(5, 1, "hello there"))
	if len(ad.sends) != before {
		t.Fatalf("non-command answered")
	}
}

func TestSetAdminsHotSwap(t *testing.T) {
	r, ad, _ := newTestRouter(t)
	ctx := context.Background()

	r.SetAdmins([]int64{42})
	r.routeUpdate(ctx, msg(5, 100, "/untag x"))
	if !strings.Contains(ad.last(t), "Unauthorized") {
		t.Fatalf("old admin still authorized: %q", ad.last(t))
	}
	r.routeUpdate(ctx, msg(5, 42, "/untag x"))
	if strings.Contains(ad.last(t), "Unauthorized") {
		t.Fatalf("new admin rejected: %q", ad.last(t))
	}
}
