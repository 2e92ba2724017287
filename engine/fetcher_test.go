package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egor6820/price-tracker-server/models"
)

type fakeReply struct {
	res *FetchResult
	err error
}

// fakeEngine replays canned replies; the last reply repeats.
type fakeEngine struct {
	name    string
	method  models.FetchMethod
	replies []fakeReply

	mu    sync.Mutex
	calls int
}

func (e *fakeEngine) Name() string               { return e.name }
func (e *fakeEngine) Method() models.FetchMethod { return e.method }

func (e *fakeEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	e.mu.Lock()
	i := e.calls
	e.calls++
	e.mu.Unlock()
	if i >= len(e.replies) {
		i = len(e.replies) - 1
	}
	r := e.replies[i]
	if r.res == nil {
		return nil, r.err
	}
	res := *r.res
	return &res, r.err
}

func (e *fakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func page(title string, size int) *FetchResult {
	return &FetchResult{
		HTML:  "<html>" + strings.Repeat("x", size) + "</html>",
		Title: title,
	}
}

func TestFetcher_RetriesUntilSuccess(t *testing.T) {
	eng := &fakeEngine{name: "http", method: models.FetchHTTP, replies: []fakeReply{
		{err: errors.New("connection reset")},
		{res: page("Widget", 100)},
	}}
	f := NewFetcher(nil, time.Millisecond, nil)

	res, doc, err := f.Fetch(context.Background(),
		Strategy{Engine: eng, Attempts: 3}, &FetchRequest{URL: "https://shop.example/p/1"})
	require.NoError(t, err)
	assert.Equal(t, 2, eng.Calls())
	assert.Equal(t, "http", res.EngineName)
	assert.Equal(t, models.FetchHTTP, doc.FetchMethod)
	assert.Equal(t, "Widget", doc.Title)
	assert.False(t, doc.FetchedAt.IsZero())
}

func TestFetcher_LastErrorAfterBudget(t *testing.T) {
	eng := &fakeEngine{name: "http", method: models.FetchHTTP, replies: []fakeReply{
		{err: errors.New("boom")},
	}}
	f := NewFetcher(nil, time.Millisecond, nil)

	_, _, err := f.Fetch(context.Background(),
		Strategy{Engine: eng, Attempts: 3}, &FetchRequest{URL: "https://shop.example/p/1"})
	require.Error(t, err)
	assert.Equal(t, 3, eng.Calls())
	assert.Equal(t, models.ErrCodeFetch, models.ErrorCode(err))
}

func TestFetcher_TooShortIsAFailedAttempt(t *testing.T) {
	eng := &fakeEngine{name: "http", method: models.FetchHTTP, replies: []fakeReply{
		{res: page("Widget", 10)},
	}}
	f := NewFetcher(nil, time.Millisecond, nil)

	_, _, err := f.Fetch(context.Background(),
		Strategy{Engine: eng, Attempts: 2, MinBytes: 500}, &FetchRequest{URL: "https://shop.example/p/1"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTooShort, models.ErrorCode(err))
	assert.Equal(t, 2, eng.Calls())
}

func TestFetcher_BlockedRenderedPage(t *testing.T) {
	blocked := &fakeEngine{name: "rendered", method: models.FetchRendered, replies: []fakeReply{
		{res: page("www.shop.example", 100)},
	}}
	f := NewFetcher(nil, time.Millisecond, nil)
	req := &FetchRequest{URL: "https://www.shop.example/p/1"}

	_, _, err := f.Fetch(context.Background(), Strategy{Engine: blocked, Attempts: 2}, req)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeBlocked, models.ErrorCode(err))

	// The same title is fine once a rule harvested something.
	harvested := page("www.shop.example", 100)
	harvested.Harvest = models.Harvest{Name: "Widget"}
	ok := &fakeEngine{name: "rendered", method: models.FetchRendered, replies: []fakeReply{{res: harvested}}}
	_, doc, err := f.Fetch(context.Background(), Strategy{Engine: ok, Attempts: 1}, req)
	require.NoError(t, err)
	assert.Equal(t, models.FetchRendered, doc.FetchMethod)

	// The blocked check only applies to rendered documents.
	light := &fakeEngine{name: "http", method: models.FetchHTTP, replies: []fakeReply{
		{res: page("www.shop.example", 100)},
	}}
	_, _, err = f.Fetch(context.Background(), Strategy{Engine: light, Attempts: 1}, req)
	assert.NoError(t, err)
}

func TestFetcher_RenderingDisabledStopsRetrying(t *testing.T) {
	// A one-hour backoff would hit the context deadline if the loop retried.
	f := NewFetcher(nil, time.Hour, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err := f.Fetch(ctx, Strategy{Engine: NewRodEngine(nil), Attempts: 3},
		&FetchRequest{URL: "https://shop.example/p/1"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeRenderingOff, models.ErrorCode(err))
}

func TestFetcher_AttemptTimeout(t *testing.T) {
	slow := NewRodEngine(func(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := NewFetcher(nil, time.Millisecond, nil)

	start := time.Now()
	_, _, err := f.Fetch(context.Background(),
		Strategy{Engine: slow, Attempts: 1, Timeout: 20 * time.Millisecond},
		&FetchRequest{URL: "https://shop.example/p/1"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.ErrorCode(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetcher_PassesAttemptTimeoutToEngine(t *testing.T) {
	var got time.Duration
	eng := NewRodEngine(func(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
		got = req.Timeout
		return page("Widget", 10), nil
	})
	f := NewFetcher(nil, time.Millisecond, nil)

	res, _, err := f.Fetch(context.Background(),
		Strategy{Engine: eng, Attempts: 1, Timeout: 7 * time.Second},
		&FetchRequest{URL: "https://shop.example/p/1"})
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, got)
	assert.Equal(t, "rendered", res.EngineName)
}

func TestFetcher_CanceledDuringBackoff(t *testing.T) {
	eng := &fakeEngine{name: "http", method: models.FetchHTTP, replies: []fakeReply{
		{err: errors.New("boom")},
	}}
	f := NewFetcher(nil, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, _, err := f.Fetch(ctx, Strategy{Engine: eng, Attempts: 2}, &FetchRequest{URL: "https://shop.example/p/1"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.ErrorCode(err))
	assert.Equal(t, 1, eng.Calls())
}

func newTestMemory() *DomainMemory {
	// No cleanup goroutine: tests drive the clock directly.
	return &DomainMemory{ttl: time.Hour, now: time.Now, done: make(chan struct{})}
}

func names(plan []Strategy) []string {
	out := make([]string, len(plan))
	for i, s := range plan {
		out[i] = s.Engine.Name()
	}
	return out
}

func TestFetcher_PlanHonoursDomainMemory(t *testing.T) {
	light := &fakeEngine{name: "http", method: models.FetchHTTP}
	rendered := &fakeEngine{name: "rendered", method: models.FetchRendered}
	strategies := []Strategy{{Engine: light}, {Engine: rendered}}

	f := NewFetcher(strategies, time.Millisecond, newTestMemory())
	assert.Equal(t, []string{"http", "rendered"}, names(f.Plan("https://shop.example/p/1")))

	f.Remember("https://www.shop.example/p/1", "rendered")
	assert.Equal(t, []string{"rendered", "http"}, names(f.Plan("https://shop.example/p/2")))
	// Other domains are unaffected.
	assert.Equal(t, []string{"http", "rendered"}, names(f.Plan("https://other.example/p/2")))

	f.Forget("https://shop.example/p/3")
	assert.Equal(t, []string{"http", "rendered"}, names(f.Plan("https://shop.example/p/2")))
}

func TestFetcher_PlanWithoutMemory(t *testing.T) {
	light := &fakeEngine{name: "http", method: models.FetchHTTP}
	rendered := &fakeEngine{name: "rendered", method: models.FetchRendered}
	f := NewFetcher([]Strategy{{Engine: light}, {Engine: rendered}}, time.Millisecond, nil)

	f.Remember("https://shop.example/p/1", "rendered")
	assert.Equal(t, []string{"http", "rendered"}, names(f.Plan("https://shop.example/p/1")))
}

func TestDomainMemory_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dm := newTestMemory()
	dm.now = func() time.Time { return now }

	dm.Set("Shop.Example", "rendered")
	assert.Equal(t, "rendered", dm.Get("www.shop.example"))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, "", dm.Get("shop.example"))

	dm.Stop()
	dm.Stop()
}

func TestIsBlockedPage(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		title   string
		harvest models.Harvest
		want    bool
	}{
		{"host title", "https://www.shop.example/p/1", "www.shop.example", models.Harvest{}, true},
		{"bare host title", "https://www.shop.example/p/1", "Shop.Example", models.Harvest{}, true},
		{"www title on bare url", "https://shop.example/p/1", "www.shop.example", models.Harvest{}, true},
		{"real title", "https://shop.example/p/1", "Widget | Shop", models.Harvest{}, false},
		{"empty title", "https://shop.example/p/1", "", models.Harvest{}, false},
		{"harvested price", "https://shop.example/p/1", "shop.example", models.Harvest{PriceText: "199"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBlockedPage(tt.url, tt.title, tt.harvest))
		})
	}
}
