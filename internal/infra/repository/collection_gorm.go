package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CollectionGormRepository struct {
	db *gorm.DB
}

// DI
func NewCollectionGormRepository(db *gorm.DB) *CollectionGormRepository {
	return &CollectionGormRepository{db: db}
}

func ownerScope(kind model.CollectionKind, owner model.Owner) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("kind = ? AND owner_kind = ? AND owner_id = ?", kind, owner.Kind, owner.ID)
	}
}

// 持ち主の明細を一覧取得
func (r *CollectionGormRepository) ListByOwner(ctx context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error) {
	var items []model.CollectionItem

	if err := r.db.WithContext(ctx).
		Scopes(ownerScope(kind, owner)).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CollectionItem{}, err
	}

	return items, nil
}

// 持ち主の明細をロックして取得（Tx内で使う）
func (r *CollectionGormRepository) ListByOwnerForUpdate(ctx context.Context, kind model.CollectionKind, owner model.Owner) ([]model.CollectionItem, error) {
	var items []model.CollectionItem

	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(ownerScope(kind, owner)).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CollectionItem{}, err
	}

	return items, nil
}

// 同一商品は mode に従って加算 or そのまま
func (r *CollectionGormRepository) Upsert(ctx context.Context, kind model.CollectionKind, owner model.Owner, item model.Item, mode repo.UpsertMode) (bool, error) {
	if mode == repo.UpsertAddQuantity && item.Quantity <= 0 {
		return false, errors.New("invalid quantity")
	}

	inserted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.CollectionItem

		err := findLocked(tx, kind, owner, item.ProductID, &existing)
		if err == nil {
			return applyMode(tx, existing, item, mode)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		//無い場合は新規作成
		qty := item.Quantity
		if kind == model.KindWishlist {
			qty = 1
		}
		now := time.Now()
		newItem := model.CollectionItem{
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
		}

		// 同時に追加されて一意制約に当たったら、相手の行を読み直して mode を適用する。
		// 失敗した文でTxが中断しないようセーブポイント内で作る。
		createErr := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(&newItem).Error
		})
		if createErr != nil {
			if retryErr := findLocked(tx, kind, owner, item.ProductID, &existing); retryErr == nil {
				return applyMode(tx, existing, item, mode)
			}
			return createErr
		}

		inserted = true
		return nil
	})

	if err != nil {
		return false, err
	}
	return inserted, nil
}

func findLocked(tx *gorm.DB, kind model.CollectionKind, owner model.Owner, productID string, out *model.CollectionItem) error {
	return tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(ownerScope(kind, owner)).
		Where("product_id = ?", productID).
		First(out).Error
}

// 既存ありだったら数量を増やす（wishlistはそのまま）
func applyMode(tx *gorm.DB, existing model.CollectionItem, item model.Item, mode repo.UpsertMode) error {
	if mode == repo.UpsertKeepExisting {
		return nil
	}

	res := tx.Model(&model.CollectionItem{}).
		Where("id = ?", existing.ID).
		Update("quantity", existing.Quantity+item.Quantity)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細の数量を更新
func (r *CollectionGormRepository) UpdateQuantity(ctx context.Context, kind model.CollectionKind, owner model.Owner, productID string, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CollectionItem{}).
		Scopes(ownerScope(kind, owner)).
		Where("product_id = ?", productID).
		Update("quantity", qty)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を削除（無くてもエラーにしない）
func (r *CollectionGormRepository) DeleteItem(ctx context.Context, kind model.CollectionKind, owner model.Owner, productID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Scopes(ownerScope(kind, owner)).
		Where("product_id = ?", productID).
		Delete(&model.CollectionItem{})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// 持ち主のコレクションを丸ごと削除
func (r *CollectionGormRepository) DeleteByOwner(ctx context.Context, kind model.CollectionKind, owner model.Owner) (int64, error) {
	res := r.db.WithContext(ctx).
		Scopes(ownerScope(kind, owner)).
		Delete(&model.CollectionItem{})

	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
