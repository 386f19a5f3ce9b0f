package viewcache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/viewcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type FetcherMock struct{ mock.Mock }

func (m *FetcherMock) Fetch(ctx context.Context, owner model.Identity) (model.Collection, error) {
	args := m.Called(ctx, owner)
	c, _ := args.Get(0).(model.Collection)
	return c, args.Error(1)
}

func cart(items ...model.Item) model.Collection {
	return model.NewCollection(model.KindCart, items)
}

func TestCache_ReadThroughAndServeFromMemory(t *testing.T) {
	ctx := context.Background()
	owner := model.Anonymous("s1")
	f := new(FetcherMock)
	f.On("Fetch", mock.Anything, owner).
		Return(cart(model.Item{ProductID: "A", Quantity: 2, Price: 100}), nil).Once()

	c := viewcache.New(f)
	v, err := c.Read(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.Count)
	assert.Equal(t, int64(200), v.Total)

	again, err := c.Read(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, v, again)
	f.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	owner := model.Anonymous("s1")
	f := new(FetcherMock)
	f.On("Fetch", mock.Anything, owner).Return(cart(), nil).Once()
	f.On("Fetch", mock.Anything, owner).Return(cart(model.Item{ProductID: "A", Quantity: 1}), nil).Once()

	c := viewcache.New(f)
	_, err := c.Read(ctx, owner)
	require.NoError(t, err)

	c.Invalidate()
	_, ok := c.Peek()
	assert.False(t, ok)

	v, err := c.Read(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Count)
	f.AssertExpectations(t)
}

func TestCache_OwnerChangeRefetches(t *testing.T) {
	ctx := context.Background()
	anon := model.Anonymous("s1")
	user := model.Authenticated("cred")
	f := new(FetcherMock)
	f.On("Fetch", mock.Anything, anon).Return(cart(model.Item{ProductID: "A", Quantity: 1}), nil).Once()
	f.On("Fetch", mock.Anything, user).Return(cart(), nil).Once()

	c := viewcache.New(f)
	_, err := c.Read(ctx, anon)
	require.NoError(t, err)
	v, err := c.Read(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, v.Collection.Items)
	f.AssertExpectations(t)
}

func TestCache_MaxAge(t *testing.T) {
	ctx := context.Background()
	owner := model.Anonymous("s1")
	now := time.Unix(1000, 0)
	f := new(FetcherMock)
	f.On("Fetch", mock.Anything, owner).Return(cart(), nil).Twice()

	c := viewcache.New(f, viewcache.WithMaxAge(time.Minute), viewcache.WithClock(func() time.Time { return now }))
	_, err := c.Read(ctx, owner)
	require.NoError(t, err)
	_, err = c.Read(ctx, owner)
	require.NoError(t, err)
	f.AssertNumberOfCalls(t, "Fetch", 1)

	now = now.Add(2 * time.Minute)
	_, err = c.Read(ctx, owner)
	require.NoError(t, err)
	f.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestCache_ErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	owner := model.Anonymous("s1")
	f := new(FetcherMock)
	f.On("Fetch", mock.Anything, owner).Return(nil, errors.New("down")).Once()
	f.On("Fetch", mock.Anything, owner).Return(cart(), nil).Once()

	c := viewcache.New(f)
	_, err := c.Read(ctx, owner)
	require.Error(t, err)
	_, err = c.Read(ctx, owner)
	require.NoError(t, err)
}

// blockingFetcher は release されるまで返らない
type blockingFetcher struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context, owner model.Identity) (model.Collection, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	if n == 1 {
		close(b.started)
		<-b.release
		return cart(model.Item{ProductID: "stale", Quantity: 1}), nil
	}
	return cart(model.Item{ProductID: "fresh", Quantity: 1}), nil
}

func TestCache_InvalidateDuringFetchDoesNotStoreStale(t *testing.T) {
	ctx := context.Background()
	owner := model.Anonymous("s1")
	f := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	c := viewcache.New(f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Read(ctx, owner)
	}()
	<-f.started
	c.Invalidate()

	v, err := c.Read(ctx, owner)
	require.NoError(t, err)
	_, ok := v.Collection.Find("fresh")
	assert.True(t, ok)

	close(f.release)
	<-done

	cached, ok := c.Peek()
	require.True(t, ok)
	_, fresh := cached.Collection.Find("fresh")
	assert.True(t, fresh)
}
