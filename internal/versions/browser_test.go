package versions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rfpdesk/pkg/domain"
)

type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *countingFetcher) AnswerVersions(ctx context.Context, questionID string) ([]domain.AnswerVersion, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return []domain.AnswerVersion{
		{ID: "v2", QuestionID: questionID, Answer: "second"},
		{ID: "v1", QuestionID: questionID, Answer: "first"},
	}, nil
}

func TestToggleFetchesOnce(t *testing.T) {
	api := &countingFetcher{}
	b := NewBrowser(api)
	ctx := context.Background()

	open, err := b.Toggle(ctx, "q1")
	if err != nil || !open {
		t.Fatalf("first toggle: open=%v err=%v", open, err)
	}
	if open, _ := b.Toggle(ctx, "q1"); open {
		t.Fatal("second toggle should close")
	}
	if open, _ := b.Toggle(ctx, "q1"); !open {
		t.Fatal("third toggle should open")
	}
	if got := api.calls.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestConcurrentTogglesShareRequest(t *testing.T) {
	api := &countingFetcher{release: make(chan struct{})}
	b := NewBrowser(api)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Toggle(context.Background(), "q1"); err != nil {
				t.Errorf("toggle: %v", err)
			}
		}()
	}
	deadline := time.Now().Add(time.Second)
	for api.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(api.release)
	wg.Wait()

	if got := api.calls.Load(); got != 1 {
		t.Fatalf("fetches = %d, want 1", got)
	}
}

func TestToggleFailureStaysClosed(t *testing.T) {
	b := NewBrowser(&countingFetcher{err: errors.New("down")})
	open, err := b.Toggle(context.Background(), "q1")
	if err == nil || open {
		t.Fatalf("expected closed with error, got open=%v err=%v", open, err)
	}
	if b.IsOpen("q1") {
		t.Fatal("dropdown should stay closed")
	}
}

func TestSelectClosesDropdown(t *testing.T) {
	b := NewBrowser(&countingFetcher{})
	if _, err := b.Toggle(context.Background(), "q1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	v, err := b.Select("q1", "v1")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if v.Answer != "first" {
		t.Fatalf("selected %+v", v)
	}
	if b.IsOpen("q1") {
		t.Fatal("select should close the dropdown")
	}
	if _, err := b.Select("q1", "nope"); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
}

func TestPrependAndInvalidate(t *testing.T) {
	api := &countingFetcher{}
	b := NewBrowser(api)

	b.Prepend("q1", domain.AnswerVersion{ID: "v0"})
	if _, ok := b.Versions("q1"); ok {
		t.Fatal("prepend before load should not create a list")
	}

	if _, err := b.Toggle(context.Background(), "q1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	b.Prepend("q1", domain.AnswerVersion{ID: "v3", Answer: "third"})
	b.Prepend("q1", domain.AnswerVersion{ID: "v3", Answer: "third"})
	list, _ := b.Versions("q1")
	if len(list) != 3 || list[0].ID != "v3" {
		t.Fatalf("unexpected versions: %+v", list)
	}

	b.Invalidate("q1")
	if _, err := b.Reload(context.Background(), "q1"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := api.calls.Load(); got != 2 {
		t.Fatalf("fetches = %d, want 2", got)
	}
}
