package storefront_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/authtoken"
	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/identity"
	"storefront/internal/infra/memory"
	"storefront/internal/reconcile"
	"storefront/internal/remote"
	"storefront/internal/server"
	"storefront/internal/session"
	"storefront/internal/storefront"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "storefront-test-secret"

type env struct {
	url      string
	sessions *session.Store
	holder   *identity.Holder
	cart     *remote.Client
	wishlist *remote.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := memory.NewStore()
	e := echo.New()
	server.RegisterRoutes(e, config.Config{JWTSecret: secret}, st, st)
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	return &env{
		url:      ts.URL,
		sessions: session.NewStore(session.NewMemoryKV()),
		holder:   identity.NewHolder(nil),
		cart:     remote.NewCartClient(ts.URL),
		wishlist: remote.NewWishlistClient(ts.URL),
	}
}

func (e *env) storefront(t *testing.T, cart, wishlist remote.Store) *storefront.Storefront {
	t.Helper()
	if cart == nil {
		cart = e.cart
	}
	if wishlist == nil {
		wishlist = e.wishlist
	}
	sf, err := storefront.New(storefront.Deps{
		Holder:   e.holder,
		Sessions: e.sessions,
		Cart:     cart,
		Wishlist: wishlist,
		Merge:    reconcile.Options{MaxAttempts: 2, InitialInterval: time.Millisecond},
	})
	require.NoError(t, err)
	return sf
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, _, err := authtoken.NewIssuer(secret, time.Hour).Issue(sub, time.Now())
	require.NoError(t, err)
	return tok
}

func TestStorefront_AnonymousCartMergedOnLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sf := e.storefront(t, nil, nil)

	v, err := sf.AddToCart(ctx, model.Item{ProductID: "P1", Quantity: 1, Name: "Beans", Price: 1200})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Count)

	oldID, ok, err := e.sessions.Peek(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, sf.Login(ctx, token(t, "user-1")))
	assert.Equal(t, reconcile.Merged, sf.Coordinator().State())

	v, err = sf.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"P1": 1}, v.Collection.Quantities())
	assert.Equal(t, int64(1200), v.Total)

	//古い匿名IDではもう何も見えない
	stale, err := e.cart.Fetch(ctx, model.Anonymous(oldID))
	require.NoError(t, err)
	assert.Empty(t, stale.Items)

	//ログアウト後は新しい匿名ID
	require.NoError(t, sf.Logout(ctx))
	id, err := sf.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OwnerAnonymous, id.Kind)
	assert.NotEqual(t, oldID, id.SessionID)

	v, err = sf.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, v.Collection.Items)
}

func TestStorefront_WishlistMergedAsUnion(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sf := e.storefront(t, nil, nil)
	user := token(t, "user-2")

	for _, id := range []string{"Y", "Z"} {
		_, err := e.wishlist.AddItem(ctx, model.Authenticated(user), model.Item{ProductID: id})
		require.NoError(t, err)
	}
	_, added, err := sf.ToggleWishlist(ctx, model.Item{ProductID: "X"})
	require.NoError(t, err)
	assert.True(t, added)
	_, err = sf.AddToWishlist(ctx, model.Item{ProductID: "Y"})
	require.NoError(t, err)

	require.NoError(t, sf.Login(ctx, user))

	v, err := sf.Wishlist(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Collection.Items, 3)
	for _, id := range []string{"X", "Y", "Z"} {
		_, ok := v.Collection.Find(id)
		assert.True(t, ok, id)
	}
}

func TestStorefront_LoginWithoutAnonymousStateStaysIdle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sf := e.storefront(t, nil, nil)

	require.NoError(t, sf.Login(ctx, token(t, "user-3")))
	assert.Equal(t, reconcile.Idle, sf.Coordinator().State())

	_, ok, err := e.sessions.Peek(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStorefront_QuantityUpdateAndFloor(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sf := e.storefront(t, nil, nil)

	_, err := sf.AddToCart(ctx, model.Item{ProductID: "A", Quantity: 1, Price: 10})
	require.NoError(t, err)
	v, err := sf.UpdateCartQuantity(ctx, "A", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v.Count)

	v, err = sf.UpdateCartQuantity(ctx, "A", 0)
	require.NoError(t, err)
	assert.Empty(t, v.Collection.Items)

	_, err = sf.UpdateCartQuantity(ctx, "A", 2)
	assert.True(t, errors.Is(err, remote.ErrNotFound))

	_, err = sf.RemoveFromCart(ctx, "A")
	assert.NoError(t, err)
}

// flakyStore は Merge を fail 回だけ失敗させる
type flakyStore struct {
	remote.Store
	fail atomic.Int32
}

func (f *flakyStore) Merge(ctx context.Context, sid, cred string) (model.Collection, error) {
	if f.fail.Add(-1) >= 0 {
		return model.Collection{}, &remote.Error{Op: "merge", Kind: f.Kind(), Err: remote.ErrNetwork}
	}
	return f.Store.Merge(ctx, sid, cred)
}

func TestStorefront_PartialMergeRetainsSessionUntilSync(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	wl := &flakyStore{Store: e.wishlist}
	wl.fail.Store(2) // MaxAttempts=2 なので1回目のRunは全滅
	sf := e.storefront(t, nil, wl)

	_, err := sf.AddToCart(ctx, model.Item{ProductID: "A", Quantity: 2})
	require.NoError(t, err)
	_, err = sf.AddToWishlist(ctx, model.Item{ProductID: "X"})
	require.NoError(t, err)
	sid, _, _ := e.sessions.Peek(ctx)

	require.NoError(t, sf.Login(ctx, token(t, "user-4")))
	assert.Equal(t, reconcile.MergeFailed, sf.Coordinator().State())
	_, ok := sf.Coordinator().LastNotice()
	assert.True(t, ok)

	still, ok, err := e.sessions.Peek(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sid, still)

	//カートは移っている
	v, err := sf.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 2}, v.Collection.Quantities())

	//次の再確認でwishlistも移り、カートは二重にならない
	res, err := sf.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Merged, res.State)

	v, err = sf.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 2}, v.Collection.Quantities())
	w, err := sf.Wishlist(ctx)
	require.NoError(t, err)
	_, ok = w.Collection.Find("X")
	assert.True(t, ok)

	_, ok, err = e.sessions.Peek(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

// blockingStore は AddItem を release まで止める
type blockingStore struct {
	remote.Store
	started chan struct{}
	release chan struct{}
}

func (b *blockingStore) AddItem(ctx context.Context, owner model.Identity, item model.Item) (model.Collection, error) {
	close(b.started)
	<-b.release
	return b.Store.AddItem(ctx, owner, item)
}

func TestStorefront_SameProductMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	cart := &blockingStore{Store: e.cart, started: make(chan struct{}), release: make(chan struct{})}
	sf := e.storefront(t, cart, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sf.AddToCart(ctx, model.Item{ProductID: "A", Quantity: 1})
		done <- err
	}()
	<-cart.started

	_, err := sf.UpdateCartQuantity(ctx, "A", 3)
	assert.True(t, errors.Is(err, storefront.ErrMutationInFlight))

	//別の商品は止めない
	_, err = sf.RemoveFromCart(ctx, "B")
	assert.NoError(t, err)

	close(cart.release)
	require.NoError(t, <-done)

	v, err := sf.UpdateCartQuantity(ctx, "A", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Count)
}

func TestStorefront_ExpiredCredentialFallsBackToAnonymous(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sf := e.storefront(t, nil, nil)

	expired, _, err := authtoken.NewIssuer(secret, time.Minute).Issue("user-5", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.holder.Set(ctx, expired))

	id, err := sf.Identity(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OwnerAnonymous, id.Kind)

	res, err := sf.Sync(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, reconcile.Merged, res.State)
}

func TestStorefront_LoginAfterExpiryMergesGuestCart(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sf := e.storefront(t, nil, nil)

	expired, _, err := authtoken.NewIssuer(secret, time.Minute).Issue("user-6", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, e.holder.Set(ctx, expired))

	_, err = sf.AddToCart(ctx, model.Item{ProductID: "P1", Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, sf.Login(ctx, token(t, "user-6")))
	assert.Equal(t, reconcile.Merged, sf.Coordinator().State())

	v, err := sf.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"P1": 1}, v.Collection.Quantities())

	_, ok, err := e.sessions.Peek(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

// lateFailStore は AddItem をサーバに反映した後でタイムアウト扱いにする
type lateFailStore struct {
	remote.Store
}

func (l *lateFailStore) AddItem(ctx context.Context, owner model.Identity, item model.Item) (model.Collection, error) {
	if _, err := l.Store.AddItem(ctx, owner, item); err != nil {
		return model.Collection{}, err
	}
	return model.Collection{}, &remote.Error{Op: "addItem", Kind: l.Kind(), Err: remote.ErrServiceUnavailable}
}

func TestStorefront_FailedMutationStillInvalidatesView(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	sf := e.storefront(t, &lateFailStore{Store: e.cart}, nil)

	v, err := sf.Cart(ctx)
	require.NoError(t, err)
	require.Empty(t, v.Collection.Items)

	_, err = sf.AddToCart(ctx, model.Item{ProductID: "A", Quantity: 2})
	require.True(t, errors.Is(err, remote.ErrServiceUnavailable))

	v, err = sf.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 2}, v.Collection.Quantities())
}

func TestNew_RejectsSwappedStores(t *testing.T) {
	e := newEnv(t)

	_, err := storefront.New(storefront.Deps{
		Holder:   e.holder,
		Sessions: e.sessions,
		Cart:     e.wishlist,
		Wishlist: e.cart,
	})
	assert.Error(t, err)
}
