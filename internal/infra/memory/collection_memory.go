package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type ownerKey struct {
	kind  model.CollectionKind
	owner model.Owner
}

type collectionData map[ownerKey][]model.CollectionItem

func (d collectionData) clone() collectionData {
	out := make(collectionData, len(d))
	for k, items := range d {
		out[k] = append([]model.CollectionItem(nil), items...)
	}
	return out
}

// Store はプロセス内で完結する CollectionRepository / TransactionManager。
// WithinTx はデータの複製に対して fn を実行し、成功したときだけ差し替える。
type Store struct {
	mu     sync.Mutex
	data   collectionData
	nextID int64
}

func NewStore() *Store {
	return &Store{data: collectionData{}}
}

func (s *Store) ListByOwner(ctx context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s, data: s.data}).ListByOwner(ctx, kind, owner)
}

func (s *Store) ListByOwnerForUpdate(ctx context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error) {
	return s.ListByOwner(ctx, kind, owner)
}

func (s *Store) Upsert(ctx context.Context, kind model.CollectionKind, owner model.Owner, item model.Item, mode repo.UpsertMode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s, data: s.data}).Upsert(ctx, kind, owner, item, mode)
}

func (s *Store) UpdateQuantity(ctx context.Context, kind model.CollectionKind, owner model.Owner, productID string, qty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s, data: s.data}).UpdateQuantity(ctx, kind, owner, productID, qty)
}

func (s *Store) DeleteItem(ctx context.Context, kind model.CollectionKind, owner model.Owner, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s, data: s.data}).DeleteItem(ctx, kind, owner, productID)
}

func (s *Store) DeleteByOwner(ctx context.Context, kind model.CollectionKind, owner model.Owner) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&txView{s: s, data: s.data}).DeleteByOwner(ctx, kind, owner)
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	view := &txView{s: s, data: s.data.clone()}
	if err := fn(view); err != nil {
		return err
	}
	s.data = view.data
	return nil
}

// txView は s.mu を持った状態でだけ使う
type txView struct {
	s    *Store
	data collectionData
}

func (v *txView) Collections() repo.CollectionRepository { return v }

func (v *txView) ListByOwner(_ context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error) {
	items := v.data[ownerKey{kind, owner}]
	return append([]model.CollectionItem{}, items...), nil
}

// WithinTx 全体が s.mu の下なのでロックは不要
func (v *txView) ListByOwnerForUpdate(ctx context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error) {
	return v.ListByOwner(ctx, kind, owner)
}

func (v *txView) Upsert(_ context.Context, kind model.CollectionKind, owner model.Owner, item model.Item, mode repo.UpsertMode) (bool, error) {
	if mode == repo.UpsertAddQuantity && item.Quantity <= 0 {
		return false, errors.New("invalid quantity")
	}

	k := ownerKey{kind, owner}
	items := v.data[k]
	for i := range items {
		if items[i].ProductID != item.ProductID {
			continue
		}
		if mode == repo.UpsertAddQuantity {
			items[i].Quantity += item.Quantity
			items[i].UpdatedAt = time.Now()
		}
		return false, nil
	}

	qty := item.Quantity
	if kind == model.KindWishlist {
		qty = 1
	}
	v.s.nextID++
	now := time.Now()
	v.data[k] = append(items, model.CollectionItem{
		ID:        v.s.nextID,
		Kind:      kind,
		OwnerKind: owner.Kind,
		OwnerID:   owner.ID,
		ProductID: item.ProductID,
		Quantity:  qty,
		Name:      item.Name,
		Price:     item.Price,
		Image:     item.Image,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return true, nil
}

func (v *txView) UpdateQuantity(_ context.Context, kind model.CollectionKind, owner model.Owner, productID string, qty int64) error {
	items := v.data[ownerKey{kind, owner}]
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity = qty
			items[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return repo.ErrNotFound
}

func (v *txView) DeleteItem(_ context.Context, kind model.CollectionKind, owner model.Owner, productID string) (bool, error) {
	k := ownerKey{kind, owner}
	items := v.data[k]
	for i := range items {
		if items[i].ProductID == productID {
			v.data[k] = append(items[:i:i], items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (v *txView) DeleteByOwner(_ context.Context, kind model.CollectionKind, owner model.Owner) (int64, error) {
	k := ownerKey{kind, owner}
	n := int64(len(v.data[k]))
	delete(v.data, k)
	return n, nil
}

var (
	_ repo.CollectionRepository = (*Store)(nil)
	_ repo.TransactionManager   = (*Store)(nil)
)
