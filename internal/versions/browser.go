package versions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"rfpdesk/pkg/domain"
)

var ErrUnknownVersion = errors.New("versions: version not loaded")

type Fetcher interface {
	AnswerVersions(ctx context.Context, questionID string) ([]domain.AnswerVersion, error)
}

// Browser tracks the version dropdown of each question. Versions are fetched
// the first time a dropdown opens and kept until invalidated.
type Browser struct {
	api   Fetcher
	group singleflight.Group

	mu     sync.Mutex
	open   map[string]bool
	loaded map[string][]domain.AnswerVersion
}

func NewBrowser(api Fetcher) *Browser {
	return &Browser{
		api:    api,
		open:   make(map[string]bool),
		loaded: make(map[string][]domain.AnswerVersion),
	}
}

// Toggle flips the dropdown for questionID and reports whether it is now
// open. Opening fetches versions unless they are already loaded; concurrent
// openings share one request.
func (b *Browser) Toggle(ctx context.Context, questionID string) (bool, error) {
	b.mu.Lock()
	if b.open[questionID] {
		delete(b.open, questionID)
		b.mu.Unlock()
		return false, nil
	}
	_, ok := b.loaded[questionID]
	b.mu.Unlock()

	if !ok {
		if _, err := b.fetch(ctx, questionID); err != nil {
			return false, err
		}
	}
	b.mu.Lock()
	b.open[questionID] = true
	b.mu.Unlock()
	return true, nil
}

// Reload fetches versions again regardless of what is loaded.
func (b *Browser) Reload(ctx context.Context, questionID string) ([]domain.AnswerVersion, error) {
	b.Invalidate(questionID)
	return b.fetch(ctx, questionID)
}

func (b *Browser) fetch(ctx context.Context, questionID string) ([]domain.AnswerVersion, error) {
	v, err, _ := b.group.Do(questionID, func() (any, error) {
		list, err := b.api.AnswerVersions(ctx, questionID)
		if err != nil {
			return nil, fmt.Errorf("load versions for %s: %w", questionID, err)
		}
		b.mu.Lock()
		b.loaded[questionID] = list
		b.mu.Unlock()
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]domain.AnswerVersion)), nil
}

func (b *Browser) IsOpen(questionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[questionID]
}

// Versions returns the loaded versions, newest first.
func (b *Browser) Versions(questionID string) ([]domain.AnswerVersion, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, ok := b.loaded[questionID]
	return clone(list), ok
}

// Select picks a loaded version and closes the dropdown. Nothing is sent to
// the backend.
func (b *Browser) Select(questionID, versionID string) (domain.AnswerVersion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.loaded[questionID] {
		if v.ID == versionID {
			delete(b.open, questionID)
			return v, nil
		}
	}
	return domain.AnswerVersion{}, fmt.Errorf("%w: %s/%s", ErrUnknownVersion, questionID, versionID)
}

// Prepend records a version produced by a save or refine. It is a no-op
// until the list has been loaded once.
func (b *Browser) Prepend(questionID string, v domain.AnswerVersion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, ok := b.loaded[questionID]
	if !ok {
		return
	}
	for _, existing := range list {
		if v.ID != "" && existing.ID == v.ID {
			return
		}
	}
	b.loaded[questionID] = append([]domain.AnswerVersion{v}, list...)
}

func (b *Browser) Invalidate(questionID string) {
	b.mu.Lock()
	delete(b.loaded, questionID)
	b.mu.Unlock()
}

func clone(list []domain.AnswerVersion) []domain.AnswerVersion {
	if list == nil {
		return nil
	}
	return append([]domain.AnswerVersion(nil), list...)
}
