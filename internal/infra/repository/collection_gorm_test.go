package repository_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/infra/db"
	infraRepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// DATABASE_URL があるときだけ実DB（postgres）で動かす
func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL is not set")
	}

	gormDB, err := db.Connect()
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// テストごとに別の持ち主を使うので後片付けは持ち主単位
func owners(t *testing.T, gormDB *gorm.DB) (model.Owner, model.Owner) {
	t.Helper()
	anon := model.Owner{Kind: model.OwnerAnonymous, ID: "sess-" + uuid.NewString()}
	user := model.Owner{Kind: model.OwnerAuthenticated, ID: "user-" + uuid.NewString()}
	t.Cleanup(func() {
		gormDB.Where("owner_id IN ?", []string{anon.ID, user.ID}).Delete(&model.CollectionItem{})
	})
	return anon, user
}

func quantities(items []model.CollectionItem) map[string]int64 {
	out := make(map[string]int64, len(items))
	for _, it := range items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func TestCollectionGorm_UpsertModes(t *testing.T) {
	ctx := context.Background()
	gormDB := openDB(t)
	r := infraRepo.NewCollectionGormRepository(gormDB)
	anon, _ := owners(t, gormDB)

	inserted, err := r.Upsert(ctx, model.KindCart, anon, model.Item{ProductID: "A", Quantity: 2, Price: 100}, repo.UpsertAddQuantity)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = r.Upsert(ctx, model.KindCart, anon, model.Item{ProductID: "A", Quantity: 3}, repo.UpsertAddQuantity)
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = r.Upsert(ctx, model.KindWishlist, anon, model.Item{ProductID: "A"}, repo.UpsertKeepExisting)
	require.NoError(t, err)
	assert.True(t, inserted)
	_, err = r.Upsert(ctx, model.KindWishlist, anon, model.Item{ProductID: "A"}, repo.UpsertKeepExisting)
	require.NoError(t, err)

	cart, err := r.ListByOwner(ctx, model.KindCart, anon)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 5}, quantities(cart))

	//cartとwishlistは別のコレクション
	wl, err := r.ListByOwner(ctx, model.KindWishlist, anon)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 1}, quantities(wl))
}

func TestCollectionGorm_ConcurrentAddsOfSameProduct(t *testing.T) {
	ctx := context.Background()
	gormDB := openDB(t)
	r := infraRepo.NewCollectionGormRepository(gormDB)
	anon, _ := owners(t, gormDB)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Upsert(ctx, model.KindCart, anon, model.Item{ProductID: "A", Quantity: 1}, repo.UpsertAddQuantity)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	items, err := r.ListByOwner(ctx, model.KindCart, anon)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 8}, quantities(items))
}

func TestCollectionGorm_UpdateQuantityAndDelete(t *testing.T) {
	ctx := context.Background()
	gormDB := openDB(t)
	r := infraRepo.NewCollectionGormRepository(gormDB)
	anon, _ := owners(t, gormDB)

	err := r.UpdateQuantity(ctx, model.KindCart, anon, "missing", 2)
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	_, err = r.Upsert(ctx, model.KindCart, anon, model.Item{ProductID: "A", Quantity: 1}, repo.UpsertAddQuantity)
	require.NoError(t, err)
	require.NoError(t, r.UpdateQuantity(ctx, model.KindCart, anon, "A", 7))

	removed, err := r.DeleteItem(ctx, model.KindCart, anon, "A")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = r.DeleteItem(ctx, model.KindCart, anon, "A")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCollectionGorm_MergeAndRepeat(t *testing.T) {
	ctx := context.Background()
	gormDB := openDB(t)
	r := infraRepo.NewCollectionGormRepository(gormDB)
	uc := usecase.NewCartUsecase(r, infraRepo.NewTxManagerGorm(gormDB))
	anon, user := owners(t, gormDB)

	for _, it := range []model.Item{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}} {
		_, err := uc.Add(ctx, anon, it)
		require.NoError(t, err)
	}
	for _, it := range []model.Item{{ProductID: "B", Quantity: 3}, {ProductID: "C", Quantity: 1}} {
		_, err := uc.Add(ctx, user, it)
		require.NoError(t, err)
	}

	first, err := uc.Merge(ctx, user, anon.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 2, "B": 4, "C": 1}, first.Quantities())

	second, err := uc.Merge(ctx, user, anon.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Quantities(), second.Quantities())

	left, err := r.ListByOwner(ctx, model.KindCart, anon)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCollectionGorm_OverlappingMergesDoNotDouble(t *testing.T) {
	ctx := context.Background()
	gormDB := openDB(t)
	r := infraRepo.NewCollectionGormRepository(gormDB)
	uc := usecase.NewCartUsecase(r, infraRepo.NewTxManagerGorm(gormDB))
	anon, user := owners(t, gormDB)

	_, err := uc.Add(ctx, anon, model.Item{ProductID: "A", Quantity: 1})
	require.NoError(t, err)
	_, err = uc.Add(ctx, user, model.Item{ProductID: "A", Quantity: 3})
	require.NoError(t, err)

	// タイムアウト後の再送が先の要求と重なる場合
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Merge(ctx, user, anon.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := r.ListByOwner(ctx, model.KindCart, user)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 4}, quantities(items))
}
