package pagination

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igpull/pkg/errors"
	"igpull/pkg/logger"
)

type pagedFetcher struct {
	pages   []Page[int]
	failing map[int][]error
	calls   int
	cursors []string
}

func (f *pagedFetcher) FetchPage(_ context.Context, _ string, cursor string) (Page[int], error) {
	f.calls++
	f.cursors = append(f.cursors, cursor)

	idx := 0
	if cursor != "" {
		_, _ = fmt.Sscanf(cursor, "c%d", &idx)
	}
	if queued := f.failing[idx]; len(queued) > 0 {
		f.failing[idx] = queued[1:]
		return Page[int]{}, queued[0]
	}
	return f.pages[idx], nil
}

// threePages builds 3 pages of 2 items each
func threePages() []Page[int] {
	return []Page[int]{
		{Items: []int{1, 2}, HasNext: true, Cursor: "c1"},
		{Items: []int{3, 4}, HasNext: true, Cursor: "c2"},
		{Items: []int{5, 6}, HasNext: false},
	}
}

type countingPacer struct{ calls int }

func (p *countingPacer) PageDelay(ctx context.Context) error {
	p.calls++
	return ctx.Err()
}

type countingSession struct{ refreshes int }

func (s *countingSession) RefreshSession() { s.refreshes++ }

type sleepRecorder struct{ delays []time.Duration }

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func collect(t *testing.T, it *Iterator[int]) []int {
	t.Helper()
	var got []int
	for it.Next(context.Background()) {
		got = append(got, it.Item())
	}
	return got
}

func TestIteratorWalksAllPages(t *testing.T) {
	fetcher := &pagedFetcher{pages: threePages()}
	pacer := &countingPacer{}

	it := New[int](fetcher, "42", 0, Options{Pacer: pacer})
	got := collect(t, it)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
	assert.Equal(t, []string{"", "c1", "c2"}, fetcher.cursors)
	assert.Equal(t, 2, pacer.calls, "no delay before the first page")
	assert.NoError(t, it.Err())
	assert.False(t, it.Truncated())
	assert.Equal(t, 6, it.Count())
	assert.Equal(t, 3, it.Pages())
}

func TestIteratorStopsAtLimit(t *testing.T) {
	fetcher := &pagedFetcher{pages: threePages()}

	it := New[int](fetcher, "42", 5, Options{})
	got := collect(t, it)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
	assert.Equal(t, 3, fetcher.calls)
	assert.False(t, it.Next(context.Background()))
	assert.Equal(t, 3, fetcher.calls, "no page is fetched after the limit")
}

func TestIteratorLimitOnPageBoundary(t *testing.T) {
	fetcher := &pagedFetcher{pages: threePages()}

	it := New[int](fetcher, "42", 4, Options{})
	got := collect(t, it)

	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Equal(t, 2, fetcher.calls)
}

func TestIteratorStopsOnEmptyCursor(t *testing.T) {
	fetcher := &pagedFetcher{pages: []Page[int]{
		{Items: []int{1}, HasNext: true, Cursor: ""},
		{Items: []int{2}},
	}}

	got := collect(t, New[int](fetcher, "42", 0, Options{}))

	assert.Equal(t, []int{1}, got)
	assert.Equal(t, 1, fetcher.calls)
}

func TestIteratorRetriesPageWithLinearBackoff(t *testing.T) {
	fetcher := &pagedFetcher{
		pages: threePages(),
		failing: map[int][]error{
			1: {errs.RateLimited(429, time.Second), errs.Transport(fmt.Errorf("connection reset"))},
		},
	}
	session := &countingSession{}
	sleeper := &sleepRecorder{}
	log := logger.NewTestLogger()

	it := New[int](fetcher, "42", 0, Options{Session: session, Sleep: sleeper.sleep, Logger: log})
	got := collect(t, it)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
	assert.Equal(t, []time.Duration{30 * time.Second, 60 * time.Second}, sleeper.delays)
	assert.Equal(t, 2, session.refreshes)
	assert.False(t, it.Truncated())
	assert.True(t, log.HasMessage("page fetch failed, retrying"))
}

func TestIteratorTruncatesAfterRetries(t *testing.T) {
	fetcher := &pagedFetcher{
		pages: threePages(),
		failing: map[int][]error{
			1: {errs.API(500, "boom"), errs.Parsing(200, "invalid JSON", nil), errs.API(500, "boom")},
		},
	}
	session := &countingSession{}
	sleeper := &sleepRecorder{}

	it := New[int](fetcher, "42", 0, Options{Session: session, Sleep: sleeper.sleep})
	got := collect(t, it)

	assert.Equal(t, []int{1, 2}, got, "items of earlier pages are kept")
	assert.True(t, it.Truncated())
	assert.NoError(t, it.Err())
	assert.Equal(t, 4, fetcher.calls)
	assert.Len(t, sleeper.delays, 2, "no wait after the final attempt")
	assert.Equal(t, 2, session.refreshes)
}

func TestIteratorSurfacesTerminalErrors(t *testing.T) {
	fetcher := &pagedFetcher{
		pages:   threePages(),
		failing: map[int][]error{0: {errs.PermissionDenied("profile")}},
	}

	it := New[int](fetcher, "42", 0, Options{Sleep: (&sleepRecorder{}).sleep})
	got := collect(t, it)

	assert.Empty(t, got)
	require.Error(t, it.Err())
	assert.True(t, errs.Is(it.Err(), errs.ErrorTypePermission))
	assert.False(t, it.Truncated())
	assert.Equal(t, 1, fetcher.calls)
}

func TestIteratorCancelledDuringPageDelay(t *testing.T) {
	fetcher := &pagedFetcher{pages: threePages()}
	ctx, cancel := context.WithCancel(context.Background())

	it := New[int](fetcher, "42", 0, Options{Pacer: &countingPacer{}})
	require.True(t, it.Next(ctx))
	require.True(t, it.Next(ctx))
	cancel()

	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), context.Canceled)
}
