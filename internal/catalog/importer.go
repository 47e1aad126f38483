package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
)

// Fetcher is the part of httpclient.Client the importer needs.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// feedProduct is one entry of the remote product feed.
type feedProduct struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      *struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
}

type Importer struct {
	feed   Fetcher
	repo   RepoInterface
	logger *zap.Logger
}

func NewImporter(feed Fetcher, repo RepoInterface, logger *zap.Logger) *Importer {
	return &Importer{feed: feed, repo: repo, logger: logger}
}

// Import pulls the feed at path and upserts every valid entry. It returns the
// number of products written.
func (i *Importer) Import(ctx context.Context, path string) (int, error) {
	var entries []feedProduct
	if err := i.feed.GetJSON(ctx, path, &entries); err != nil {
		return 0, fmt.Errorf("fetch product feed: %w", err)
	}

	products := make([]*domain.Product, 0, len(entries))
	for _, e := range entries {
		if e.ID <= 0 || e.Price < 0 || e.Title == "" {
			i.logger.Warn("skipping invalid feed entry", zap.Int64("id", e.ID), zap.String("title", e.Title))
			continue
		}
		p := &domain.Product{
			ID:          e.ID,
			Title:       e.Title,
			Price:       e.Price,
			Category:    e.Category,
			Description: e.Description,
			ImageURL:    e.Image,
		}
		if e.Rating != nil {
			p.Rating = &domain.Rating{Rate: e.Rating.Rate, Count: e.Rating.Count}
		}
		products = append(products, p)
	}

	if err := i.repo.UpsertProducts(ctx, products); err != nil {
		return 0, err
	}
	i.logger.Info("catalog imported", zap.Int("products", len(products)), zap.Int("skipped", len(entries)-len(products)))
	return len(products), nil
}
