package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

const maxProductIDLen = 255

// CollectionUsecase は /cart と /wishlist の業務ロジック。
// kind ごとに1インスタンス作る（プロトコルは共通）。
type CollectionUsecase struct {
	kind  model.CollectionKind
	items repo.CollectionRepository
	tx    repo.TransactionManager
}

func NewCartUsecase(items repo.CollectionRepository, tx repo.TransactionManager) *CollectionUsecase {
	return &CollectionUsecase{kind: model.KindCart, items: items, tx: tx}
}

func NewWishlistUsecase(items repo.CollectionRepository, tx repo.TransactionManager) *CollectionUsecase {
	return &CollectionUsecase{kind: model.KindWishlist, items: items, tx: tx}
}

func (u *CollectionUsecase) Kind() model.CollectionKind { return u.kind }

// ToggleOutput は /wishlist/toggle の結果
type ToggleOutput struct {
	model.CollectionResponse
	Added bool `json:"added"`
}

// Get はコレクション取得（無ければ空）。
func (u *CollectionUsecase) Get(ctx context.Context, owner model.Owner) (model.Collection, error) {
	if !owner.Valid() {
		return model.Collection{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u.build(ctx, u.items, owner)
}

// Add は追加。cartは同一商品の数量加算、wishlistは既にあれば何もしない。
func (u *CollectionUsecase) Add(ctx context.Context, owner model.Owner, in model.Item) (model.Collection, error) {
	if !owner.Valid() {
		return model.Collection{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	in.ProductID = strings.TrimSpace(in.ProductID)
	if err := validateProductID(in.ProductID); err != nil {
		return model.Collection{}, err
	}
	if in.Price < 0 {
		return model.Collection{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}

	mode := repo.UpsertKeepExisting
	if u.kind == model.KindCart {
		if in.Quantity < 1 {
			return model.Collection{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
		mode = repo.UpsertAddQuantity
	}

	if _, err := u.items.Upsert(ctx, u.kind, owner, in, mode); err != nil {
		return model.Collection{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.build(ctx, u.items, owner)
}

// UpdateQuantity は数量変更（cartのみ）。1未満は削除と同じ。
func (u *CollectionUsecase) UpdateQuantity(ctx context.Context, owner model.Owner, productID string, qty int64) (model.Collection, error) {
	if !owner.Valid() {
		return model.Collection{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if u.kind != model.KindCart {
		return model.Collection{}, NewHTTPError(http.StatusBadRequest, "quantity is not supported")
	}
	if err := validateProductID(productID); err != nil {
		return model.Collection{}, err
	}

	if qty < 1 {
		return u.Remove(ctx, owner, productID)
	}

	if err := u.items.UpdateQuantity(ctx, u.kind, owner, productID, qty); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Collection{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return model.Collection{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.build(ctx, u.items, owner)
}

// Remove は明細削除（無くてもOK）
func (u *CollectionUsecase) Remove(ctx context.Context, owner model.Owner, productID string) (model.Collection, error) {
	if !owner.Valid() {
		return model.Collection{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateProductID(productID); err != nil {
		return model.Collection{}, err
	}

	if _, err := u.items.DeleteItem(ctx, u.kind, owner, productID); err != nil {
		return model.Collection{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.build(ctx, u.items, owner)
}

// Toggle はあれば削除、無ければ追加（wishlistのボタン用）
func (u *CollectionUsecase) Toggle(ctx context.Context, owner model.Owner, in model.Item) (ToggleOutput, error) {
	if !owner.Valid() {
		return ToggleOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	in.ProductID = strings.TrimSpace(in.ProductID)
	if err := validateProductID(in.ProductID); err != nil {
		return ToggleOutput{}, err
	}
	if u.kind == model.KindCart && in.Quantity < 1 {
		in.Quantity = 1
	}

	var out ToggleOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		removed, err := r.Collections().DeleteItem(ctx, u.kind, owner, in.ProductID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !removed {
			if _, err := r.Collections().Upsert(ctx, u.kind, owner, in, repo.UpsertKeepExisting); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}
		out.Added = !removed

		c, err := u.build(ctx, r.Collections(), owner)
		if err != nil {
			return err
		}
		out.CollectionResponse = c.Response()
		return nil
	})
	if err != nil {
		return ToggleOutput{}, asHTTPError(err)
	}

	return out, nil
}

// Merge は匿名セッションの中身を認証済みユーザーへ移して、匿名側を消す。
// 既に消えていれば（2回目以降）ユーザー側をそのまま返す。
func (u *CollectionUsecase) Merge(ctx context.Context, target model.Owner, sessionID string) (model.Collection, error) {
	if target.Kind != model.OwnerAuthenticated || !target.Valid() {
		return model.Collection{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return model.Collection{}, NewHTTPError(http.StatusBadRequest, "invalid session_id")
	}

	source := model.Owner{Kind: model.OwnerAnonymous, ID: sessionID}
	mode := repo.UpsertKeepExisting
	if u.kind == model.KindCart {
		mode = repo.UpsertAddQuantity
	}

	var out model.Collection

	//移し替えと削除は同じトランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//匿名側をロックして読む。後から来たマージは先のコミット後に空を読む
		items, err := r.Collections().ListByOwnerForUpdate(ctx, u.kind, source)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		for _, it := range items {
			item := it.ToItem()
			if mode == repo.UpsertAddQuantity && item.Quantity < 1 {
				continue
			}
			if _, err := r.Collections().Upsert(ctx, u.kind, target, item, mode); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		if len(items) > 0 {
			if _, err := r.Collections().DeleteByOwner(ctx, u.kind, source); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		out, err = u.build(ctx, r.Collections(), target)
		return err
	})
	if err != nil {
		return model.Collection{}, asHTTPError(err)
	}

	return out, nil
}

// ownerの明細をまとめてCollectionを作る。
func (u *CollectionUsecase) build(ctx context.Context, items repo.CollectionRepository, owner model.Owner) (model.Collection, error) {
	rows, err := items.ListByOwner(ctx, u.kind, owner)
	if err != nil {
		return model.Collection{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := make([]model.Item, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToItem())
	}
	return model.NewCollection(u.kind, out), nil
}

func validateProductID(productID string) error {
	if productID == "" || len(productID) > maxProductIDLen {
		return NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	return nil
}

func asHTTPError(err error) error {
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return NewHTTPError(http.StatusInternalServerError, "db error")
}
