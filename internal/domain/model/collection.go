package model

// Collection は持ち主1人分の明細の集合。
// 件数と小計は導出値で保存しない。
type Collection struct {
	Kind  CollectionKind `json:"kind"`
	Items []Item         `json:"items"`
}

func NewCollection(kind CollectionKind, items []Item) Collection {
	if items == nil {
		items = []Item{}
	}
	return Collection{Kind: kind, Items: items}
}

// Count はcartなら数量の合計、wishlistなら件数
func (c Collection) Count() int64 {
	if c.Kind == KindWishlist {
		return int64(len(c.Items))
	}
	var n int64
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Subtotal は price * quantity の合計（wishlistは価格の合計）
func (c Collection) Subtotal() int64 {
	var total int64
	for _, it := range c.Items {
		if c.Kind == KindWishlist {
			total += it.Price
			continue
		}
		total += it.Price * it.Quantity
	}
	return total
}

func (c Collection) Find(productID string) (Item, bool) {
	for _, it := range c.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return Item{}, false
}

// Quantities は productID -> 数量 （テストや比較用）
func (c Collection) Quantities() map[string]int64 {
	out := make(map[string]int64, len(c.Items))
	for _, it := range c.Items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

// CollectionResponse はAPIのレスポンス形
type CollectionResponse struct {
	Kind  CollectionKind `json:"kind"`
	Items []Item         `json:"items"`
	Count int64          `json:"count"`
	Total int64          `json:"total"`
}

func (c Collection) Response() CollectionResponse {
	items := c.Items
	if items == nil {
		items = []Item{}
	}
	return CollectionResponse{Kind: c.Kind, Items: items, Count: c.Count(), Total: c.Subtotal()}
}

func (r CollectionResponse) Collection() Collection {
	return NewCollection(r.Kind, r.Items)
}
