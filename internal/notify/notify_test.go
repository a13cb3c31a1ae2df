package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"modelwatch/internal/catalog"
	"modelwatch/internal/transport"
	logx "modelwatch/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sends []sentMessage
	fail  int // fail the first N sends
}

type sentMessage struct {
	chatID int64
	text   string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return errors.New("telegram hiccup")
	}
	f.sends = append(f.sends, sentMessage{chatID: to.ChatID, text: text})
	return nil
}

func (f *fakeAdapter) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sends...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("condition never met")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func sampleReport() catalog.ChangeReport {
	return catalog.ChangeReport{
		Source:  "arena",
		Added:   []catalog.Model{{ID: "a", Name: "Alpha", Tag: "watch"}},
		Removed: []catalog.Model{{ID: "b", Name: "Beta"}},
	}
}

func TestRenderReport(t *testing.T) {
	got := RenderReport(sampleReport())
	want := "🆕 New models in arena:\n• Alpha (watch)\n\n❌ Removed from arena:\n• Beta"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderReportAddedOnly(t *testing.T) {
	r := catalog.ChangeReport{Source: "s", Added: []catalog.Model{{ID: "x"}}}
	got := RenderReport(r)
	if strings.Contains(got, "Removed") {
		t.Fatalf("unexpected removed block: %s", got)
	}
	// Nameless entries fall back to the id.
	if !strings.Contains(got, "• x") {
		t.Fatalf("missing id fallback: %s", got)
	}
}

func TestDeliverFansOutToAllChats(t *testing.T) {
	ad := &fakeAdapter{}
	svc := New(Config{RatePerSec: 100}, ad, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if err := svc.Deliver(ctx, sampleReport(), []int64{1, 2, 3}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	waitFor(t, func() bool { return len(ad.all()) == 3 })

	seen := map[int64]bool{}
	for _, s := range ad.all() {
		seen[s.chatID] = true
		if !strings.Contains(s.text, "Alpha") {
			t.Fatalf("text = %q", s.text)
		}
	}
	if !seen[1] || !seen[2] || !seen[3] {
		t.Fatalf("chats = %v", seen)
	}
}

func TestDeliverEmptyReportIsNoop(t *testing.T) {
	ad := &fakeAdapter{}
	svc := New(Config{}, ad, logx.Nop())
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop(ctx)

	if err := svc.Deliver(ctx, catalog.ChangeReport{Source: "s"}, []int64{1}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := ad.all(); len(got) != 0 {
		t.Fatalf("sends = %+v", got)
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	ad := &fakeAdapter{fail: 2}
	svc := New(Config{RatePerSec: 100, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, ad, logx.Nop())
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop(ctx)

	if err := svc.Deliver(ctx, sampleReport(), []int64{9}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	waitFor(t, func() bool { return len(ad.all()) == 1 })
	if ad.all()[0].chatID != 9 {
		t.Fatalf("sends = %+v", ad.all())
	}
}

func TestEnqueueAfterStopFails(t *testing.T) {
	ad := &fakeAdapter{}
	svc := New(Config{}, ad, logx.Nop())
	ctx := context.Background()
	svc.Start(ctx)
	svc.Stop(ctx)

	err := svc.Deliver(ctx, sampleReport(), []int64{1})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v", err)
	}
}
