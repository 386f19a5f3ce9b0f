package model

import "time"

// コレクションの明細（cart / wishlist 共通）
// 表示用のname/price/imageは追加時点のものを保存する。
// (kind, owner_kind, owner_id, product_id) で一意。
type CollectionItem struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"-"`
	Kind      CollectionKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_collection_owner_product,priority:1" json:"-"`
	OwnerKind OwnerKind      `gorm:"type:varchar(20);not null;uniqueIndex:idx_collection_owner_product,priority:2" json:"-"`
	OwnerID   string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_collection_owner_product,priority:3" json:"-"`
	ProductID string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_collection_owner_product,priority:4" json:"product_id"`
	Quantity  int64          `gorm:"not null" json:"quantity"`
	Name      string         `gorm:"type:varchar(255)" json:"name"`
	Price     int64          `gorm:"not null;default:0" json:"price"`
	Image     string         `gorm:"type:text" json:"image"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"-"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"-"`
}

// Item は明細のワイヤ表現
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Name      string `json:"name,omitempty"`
	Price     int64  `json:"price"`
	Image     string `json:"image,omitempty"`
}

func (ci CollectionItem) ToItem() Item {
	return Item{
		ProductID: ci.ProductID,
		Quantity:  ci.Quantity,
		Name:      ci.Name,
		Price:     ci.Price,
		Image:     ci.Image,
	}
}
