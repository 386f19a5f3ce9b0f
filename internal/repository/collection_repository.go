package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 追加時の扱い
type UpsertMode int

const (
	// 同一商品は数量を加算（cart）
	UpsertAddQuantity UpsertMode = iota
	// 既にあれば何もしない（wishlist）
	UpsertKeepExisting
)

// cart / wishlist の明細の永続化だけを約束。
// kind と owner の組で1つのコレクションになる。
type CollectionRepository interface {
	ListByOwner(ctx context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error)
	// 行ロック付き（Tx内で使う）。並行するマージが同じ明細を二重に移さないため
	ListByOwnerForUpdate(ctx context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error)
	// 同一商品は mode に従う。挿入したら true
	Upsert(ctx context.Context, kind model.CollectionKind, owner model.Owner, item model.Item, mode UpsertMode) (bool, error)
	UpdateQuantity(ctx context.Context, kind model.CollectionKind, owner model.Owner, productID string, qty int64) error
	// 無くてもエラーにしない。消したら true
	DeleteItem(ctx context.Context, kind model.CollectionKind, owner model.Owner, productID string) (bool, error)
	DeleteByOwner(ctx context.Context, kind model.CollectionKind, owner model.Owner) (int64, error)
}
