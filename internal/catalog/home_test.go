package catalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

type stubRepository struct {
	categories    []Category
	categoriesErr error
	products      []Product
	productsErr   error
}

func (s *stubRepository) ListCategories(context.Context) ([]Category, error) {
	return s.categories, s.categoriesErr
}

func (s *stubRepository) ListActiveProducts(context.Context, ProductFilter) ([]Product, error) {
	return s.products, s.productsErr
}

func (s *stubRepository) GetActiveProductByName(context.Context, string) (Product, error) {
	return Product{}, ErrProductNotFound
}

func (s *stubRepository) ListActiveProductSlugs(context.Context) ([]sql.NullString, error) {
	return nil, nil
}

func (s *stubRepository) ListAllProducts(context.Context) ([]Product, error) { return s.products, nil }

func (s *stubRepository) GetProfile(context.Context, string) (Profile, error) {
	return Profile{}, ErrProfileNotFound
}

func (s *stubRepository) Ping(context.Context) error { return nil }

func TestHomeLoaderDistributes(t *testing.T) {
	repo := &stubRepository{
		categories: []Category{{ID: 1, Name: "Madera"}},
		products:   []Product{product(1, 1, true), product(2, 0, true), product(3, 0, false)},
	}
	loader, err := NewHomeLoader(HomeLoaderDeps{Repository: repo, FeaturedCapacity: 9})
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	d := loader.Load(context.Background())
	if got := ids(d.GridByCategory()[1]); !equalIDs(got, []int64{1, 2}) {
		t.Fatalf("grid = %v", got)
	}
	if got := ids(d.Featured); !equalIDs(got, []int64{3}) {
		t.Fatalf("featured = %v", got)
	}
}

func TestHomeLoaderDegradesOnQueryErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := requestctx.WithLogger(context.Background(), zap.New(core))

	repo := &stubRepository{
		categoriesErr: errors.New("timeout"),
		productsErr:   errors.New("timeout"),
	}
	loader, err := NewHomeLoader(HomeLoaderDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	d := loader.Load(ctx)
	if len(d.Grid) != 0 || len(d.Gifts) != 0 || len(d.Featured) != 0 {
		t.Fatalf("expected empty distribution, got %+v", d)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected two warnings, got %d", logs.Len())
	}
}

func TestNewHomeLoaderRequiresRepository(t *testing.T) {
	if _, err := NewHomeLoader(HomeLoaderDeps{}); err == nil {
		t.Fatalf("expected error")
	}
}
