package catalog

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sobrepoxidev/sobrepoxi-sub002/internal/platform/requestctx"
)

// HomeLoaderDeps bundles constructor inputs for the home loader.
type HomeLoaderDeps struct {
	Repository       Repository
	FeaturedCapacity int
}

// HomeLoader fetches the catalog and distributes it into home page buckets.
type HomeLoader struct {
	repo     Repository
	capacity int
}

func NewHomeLoader(deps HomeLoaderDeps) (*HomeLoader, error) {
	if deps.Repository == nil {
		return nil, errors.New("catalog: home loader requires a repository")
	}
	return &HomeLoader{repo: deps.Repository, capacity: deps.FeaturedCapacity}, nil
}

// Load never fails: a failed query is logged and treated as an empty result.
func (l *HomeLoader) Load(ctx context.Context) Distribution {
	logger := requestctx.Logger(ctx)

	categories, err := l.repo.ListCategories(ctx)
	if err != nil {
		logger.Warn("home: categories unavailable", zap.Error(err))
		categories = []Category{}
	}
	products, err := l.repo.ListActiveProducts(ctx, ProductFilter{})
	if err != nil {
		logger.Warn("home: products unavailable", zap.Error(err))
		products = []Product{}
	}
	return Distribute(products, categories, l.capacity)
}

// Categories returns the category list, or an empty slice when the query fails.
func (l *HomeLoader) Categories(ctx context.Context) []Category {
	categories, err := l.repo.ListCategories(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("catalog: categories unavailable", zap.Error(err))
		return []Category{}
	}
	return categories
}
