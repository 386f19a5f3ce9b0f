package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"storefront/internal/domain/model"
	"storefront/internal/identity"
	"storefront/internal/reconcile"
	"storefront/internal/remote"
	"storefront/internal/session"
	"storefront/internal/viewcache"
)

// ErrMutationInFlight は同じ商品の操作がまだ終わっていない（UIのボタン無効化に相当）
var ErrMutationInFlight = errors.New("another change to this item is still in progress")

// Storefront はカート・ウィッシュリストの状態をまとめて持つ。
// グローバルな状態は持たず、これを引き回す。
type Storefront struct {
	holder   *identity.Holder
	resolver *identity.Resolver
	sessions *session.Store

	cart     remote.Store
	wishlist remote.Store

	cartView     *viewcache.Cache
	wishlistView *viewcache.Cache

	coordinator *reconcile.Coordinator
	logger      *slog.Logger

	inflight sync.Map // kind:productID -> struct{}
}

type Deps struct {
	Holder   *identity.Holder
	Sessions *session.Store
	Cart     remote.Store
	Wishlist remote.Store
	Merge    reconcile.Options
	Logger   *slog.Logger
}

func New(d Deps) (*Storefront, error) {
	if d.Holder == nil || d.Sessions == nil || d.Cart == nil || d.Wishlist == nil {
		return nil, errors.New("storefront: holder, sessions, cart and wishlist are required")
	}
	if d.Cart.Kind() != model.KindCart || d.Wishlist.Kind() != model.KindWishlist {
		return nil, errors.New("storefront: cart and wishlist stores are swapped")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Merge.Logger == nil {
		d.Merge.Logger = d.Logger
	}

	s := &Storefront{
		holder:       d.Holder,
		sessions:     d.Sessions,
		cart:         d.Cart,
		wishlist:     d.Wishlist,
		cartView:     viewcache.New(d.Cart),
		wishlistView: viewcache.New(d.Wishlist),
		logger:       d.Logger,
	}
	s.resolver = identity.NewResolver(d.Holder, d.Sessions,
		identity.WithLogger(d.Logger),
		identity.WithInvalidators(s.cartView, s.wishlistView),
	)
	s.coordinator = reconcile.New(d.Sessions, []reconcile.Target{
		{Store: d.Cart, View: s.cartView},
		{Store: d.Wishlist, View: s.wishlistView},
	}, d.Merge)

	d.Holder.Subscribe(s.onTransition)
	return s, nil
}

func (s *Storefront) Coordinator() *reconcile.Coordinator { return s.coordinator }

// Identity は今の呼び出し元
func (s *Storefront) Identity(ctx context.Context) (model.Identity, error) {
	return s.resolver.Current(ctx)
}

// Cart はビューキャッシュ経由で読む
func (s *Storefront) Cart(ctx context.Context) (viewcache.View, error) {
	return s.read(ctx, s.cartView)
}

func (s *Storefront) Wishlist(ctx context.Context) (viewcache.View, error) {
	return s.read(ctx, s.wishlistView)
}

func (s *Storefront) AddToCart(ctx context.Context, item model.Item) (viewcache.View, error) {
	return s.mutate(ctx, s.cart, s.cartView, item.ProductID, func(owner model.Identity) error {
		_, err := s.cart.AddItem(ctx, owner, item)
		return err
	})
}

// UpdateCartQuantity は絶対値で送る（複数タブでは後勝ち）。1未満は削除。
func (s *Storefront) UpdateCartQuantity(ctx context.Context, productID string, qty int64) (viewcache.View, error) {
	return s.mutate(ctx, s.cart, s.cartView, productID, func(owner model.Identity) error {
		_, err := s.cart.UpdateQuantity(ctx, owner, productID, qty)
		return err
	})
}

func (s *Storefront) RemoveFromCart(ctx context.Context, productID string) (viewcache.View, error) {
	return s.mutate(ctx, s.cart, s.cartView, productID, func(owner model.Identity) error {
		_, err := s.cart.RemoveItem(ctx, owner, productID)
		return err
	})
}

func (s *Storefront) AddToWishlist(ctx context.Context, item model.Item) (viewcache.View, error) {
	return s.mutate(ctx, s.wishlist, s.wishlistView, item.ProductID, func(owner model.Identity) error {
		_, err := s.wishlist.AddItem(ctx, owner, item)
		return err
	})
}

func (s *Storefront) RemoveFromWishlist(ctx context.Context, productID string) (viewcache.View, error) {
	return s.mutate(ctx, s.wishlist, s.wishlistView, productID, func(owner model.Identity) error {
		_, err := s.wishlist.RemoveItem(ctx, owner, productID)
		return err
	})
}

// ToggleWishlist はトグル。ストアが Toggler でなければ有無を見て追加/削除する。
func (s *Storefront) ToggleWishlist(ctx context.Context, item model.Item) (viewcache.View, bool, error) {
	var added bool
	v, err := s.mutate(ctx, s.wishlist, s.wishlistView, item.ProductID, func(owner model.Identity) error {
		if tg, ok := s.wishlist.(remote.Toggler); ok {
			var err error
			_, added, err = tg.Toggle(ctx, owner, item)
			return err
		}

		cur, err := s.wishlist.Fetch(ctx, owner)
		if err != nil {
			return err
		}
		if _, exists := cur.Find(item.ProductID); exists {
			_, err = s.wishlist.RemoveItem(ctx, owner, item.ProductID)
			return err
		}
		added = true
		_, err = s.wishlist.AddItem(ctx, owner, item)
		return err
	})
	return v, added, err
}

// Login は認証サブシステムからログイン完了を受け取る。
// 匿名→認証済みの遷移ならマージが走る（onTransition経由）。
func (s *Storefront) Login(ctx context.Context, credential string) error {
	return s.holder.Set(ctx, credential)
}

func (s *Storefront) Logout(ctx context.Context) error {
	return s.holder.Clear(ctx)
}

// Sync は認証状態の再確認（ページ読み込み相当）。
// 認証済みで匿名セッションIDが残っていればマージをやり直す。
func (s *Storefront) Sync(ctx context.Context) (reconcile.Result, error) {
	cred, ok, err := s.resolver.Authenticated(ctx)
	if err != nil {
		return reconcile.Result{}, err
	}
	if !ok {
		// 期限切れならここで認証済みのビューを捨てて匿名に戻る
		if _, err := s.resolver.Current(ctx); err != nil {
			return reconcile.Result{}, err
		}
		return reconcile.Result{State: s.coordinator.State()}, nil
	}
	return s.merge(ctx, cred)
}

func (s *Storefront) onTransition(ctx context.Context, t identity.Transition) {
	s.logger.Info("auth transition", "transition", t.String())

	switch t {
	case identity.LoggedIn:
		cred, ok, err := s.resolver.Authenticated(ctx)
		if err != nil || !ok {
			s.invalidate()
			return
		}
		_, _ = s.merge(ctx, cred)
	case identity.LoggedOut:
		s.invalidate()
	}
}

// merge の失敗はUIへの通知で済ませ、呼び出し元の処理は止めない
func (s *Storefront) merge(ctx context.Context, cred string) (reconcile.Result, error) {
	res, err := s.coordinator.Run(ctx, cred)
	if err != nil {
		s.logger.Warn("merge did not complete", "state", res.State.String(), "err", err)
	}
	s.invalidate()
	return res, err
}

func (s *Storefront) invalidate() {
	s.cartView.Invalidate()
	s.wishlistView.Invalidate()
}

func (s *Storefront) read(ctx context.Context, view *viewcache.Cache) (viewcache.View, error) {
	owner, err := s.resolver.Current(ctx)
	if err != nil {
		return viewcache.View{}, err
	}
	return view.Read(ctx, owner)
}

// mutate は同じ商品への操作を1つずつにし、サーバ反映→無効化→取り直しが終わるまで離さない
func (s *Storefront) mutate(ctx context.Context, store remote.Store, view *viewcache.Cache, productID string, fn func(owner model.Identity) error) (viewcache.View, error) {
	key := string(store.Kind()) + ":" + productID
	if _, busy := s.inflight.LoadOrStore(key, struct{}{}); busy {
		return viewcache.View{}, fmt.Errorf("%s %s: %w", store.Kind(), productID, ErrMutationInFlight)
	}
	defer s.inflight.Delete(key)

	owner, err := s.resolver.Current(ctx)
	if err != nil {
		return viewcache.View{}, err
	}

	err = fn(owner)
	//失敗でもサーバ側はコミット済みかもしれないので必ず捨てる
	view.Invalidate()
	if err != nil {
		return viewcache.View{}, err
	}
	return view.Read(ctx, owner)
}
