package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"product-scanner/internal/barcode"
	"product-scanner/internal/domain"
	"product-scanner/internal/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultPageSize and MaxPageSize bound the search window.
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MinQueryLength is the shortest accepted search term after trimming.
	MinQueryLength = 2

	scanCacheKeyPrefix = "scan:"
)

var (
	ErrQueryTooShort = errors.New("search term must be at least 2 characters long")
	ErrBarcodeExists = errors.New("product with this barcode already exists")
	ErrNameRequired  = errors.New("product name is required")
)

// SearchPage is one window of ranked search results.
type SearchPage struct {
	Items      []*domain.ProductDetail
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// ProductInput carries the fields of an API write. Nil fields are unknown and
// keep their stored values on update (merge semantics).
type ProductInput struct {
	Barcode     string
	Name        *string
	Brand       *string
	Category    *string
	Description *string
	SizeValue   *float64
	SizeUnit    *string
	Price       *float64
	Nutrition   *domain.NutritionFacts
	ImageURL    *string
}

// CatalogService defines the interface for catalog lookups, search and the
// API write paths.
type CatalogService interface {
	Search(ctx context.Context, term string, page, pageSize int) (*SearchPage, error)
	LookupBarcode(ctx context.Context, raw string) (*domain.ProductDetail, error)
	GetProduct(ctx context.Context, id int64) (*domain.ProductDetail, error)
	AddProduct(ctx context.Context, input ProductInput) (*domain.ProductDetail, error)
	UpdateProduct(ctx context.Context, id int64, input ProductInput) (*domain.ProductDetail, error)
	Categories(ctx context.Context) ([]string, error)
	Brands(ctx context.Context) ([]string, error)
}

type catalogService struct {
	repo     repository.CatalogRepository
	cache    *redis.Client // nil disables scan caching
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a new instance of CatalogService. cache may be
// nil, in which case barcode lookups always hit the store.
func NewCatalogService(repo repository.CatalogRepository, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) CatalogService {
	return &catalogService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Search validates the query contract and returns one ranked page. Terms
// shorter than two characters after trimming are rejected before any store
// access; page and pageSize are defaulted and clamped to their bounds.
func (s *catalogService) Search(ctx context.Context, term string, page, pageSize int) (*SearchPage, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < MinQueryLength {
		return nil, ErrQueryTooShort
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	items, total, err := s.repo.Search(ctx, term, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search catalog: %w", err)
	}

	return &SearchPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: repository.TotalPages(total, pageSize),
	}, nil
}

// LookupBarcode resolves a scanned code to a product. Validation runs before
// any store or cache access: structural failures and EAN-13 checksum failures
// are surfaced as-is and never reach persistence. A missing record is
// repository.ErrProductNotFound, distinct from validation failures.
func (s *catalogService) LookupBarcode(ctx context.Context, raw string) (*domain.ProductDetail, error) {
	if err := barcode.Validate(raw); err != nil {
		return nil, err
	}
	code := barcode.Sanitize(raw)

	if detail, ok := s.cachedLookup(ctx, code); ok {
		return detail, nil
	}

	detail, err := s.repo.FindByBarcode(ctx, code)
	if err != nil {
		return nil, err
	}

	s.storeInCache(ctx, code, detail)
	return detail, nil
}

// GetProduct retrieves a product by its internal id.
func (s *catalogService) GetProduct(ctx context.Context, id int64) (*domain.ProductDetail, error) {
	return s.repo.FindByID(ctx, id)
}

// AddProduct creates a new catalog entry. The barcode must be structurally
// valid and not yet present. Product, nutrition and image writes land in one
// transaction through the same merge-upsert path ingestion uses.
func (s *catalogService) AddProduct(ctx context.Context, input ProductInput) (*domain.ProductDetail, error) {
	if err := barcode.ValidateStructure(input.Barcode); err != nil {
		return nil, err
	}
	code := barcode.Sanitize(input.Barcode)

	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, ErrNameRequired
	}

	_, err := s.repo.FindByBarcode(ctx, code)
	if err == nil {
		return nil, ErrBarcodeExists
	}
	if !errors.Is(err, repository.ErrProductNotFound) {
		return nil, fmt.Errorf("failed to check existing barcode: %w", err)
	}

	id, err := s.writeProduct(ctx, code, input)
	if err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, code)
	return s.repo.FindByID(ctx, id)
}

// UpdateProduct merge-updates an existing product: only the fields provided
// in input overwrite stored values.
func (s *catalogService) UpdateProduct(ctx context.Context, id int64, input ProductInput) (*domain.ProductDetail, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.writeProduct(ctx, existing.Barcode, input); err != nil {
		return nil, err
	}

	s.invalidateCache(ctx, existing.Barcode)
	return s.repo.FindByID(ctx, id)
}

func (s *catalogService) Categories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func (s *catalogService) Brands(ctx context.Context) ([]string, error) {
	return s.repo.ListBrands(ctx)
}

// writeProduct commits one product write as a single atomic unit.
func (s *catalogService) writeProduct(ctx context.Context, code string, input ProductInput) (int64, error) {
	name := ""
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
	}

	var id int64
	err := s.repo.WithinTx(ctx, func(w repository.CatalogWriter) error {
		var err error
		id, err = w.UpsertProduct(ctx, &domain.Product{
			Barcode:     code,
			Name:        name,
			Brand:       input.Brand,
			Category:    input.Category,
			Description: input.Description,
			SizeValue:   input.SizeValue,
			SizeUnit:    input.SizeUnit,
			Price:       input.Price,
		})
		if err != nil {
			return err
		}

		if !input.Nutrition.IsEmpty() {
			if err := w.UpsertNutrition(ctx, id, input.Nutrition); err != nil {
				return err
			}
		}

		if input.ImageURL != nil && strings.TrimSpace(*input.ImageURL) != "" {
			if err := w.UpsertImage(ctx, id, domain.ImageTypeMain, strings.TrimSpace(*input.ImageURL)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write product: %w", err)
	}

	return id, nil
}

// cachedLookup returns a cached scan result. Cache failures only log; the
// lookup proceeds against the store.
func (s *catalogService) cachedLookup(ctx context.Context, code string) (*domain.ProductDetail, bool) {
	if s.cache == nil {
		return nil, false
	}

	payload, err := s.cache.Get(ctx, scanCacheKeyPrefix+code).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("Scan cache read failed", zap.Error(err), zap.String("barcode", code))
		}
		return nil, false
	}

	var detail domain.ProductDetail
	if err := json.Unmarshal(payload, &detail); err != nil {
		s.logger.Warn("Scan cache payload corrupt", zap.Error(err), zap.String("barcode", code))
		return nil, false
	}

	return &detail, true
}

func (s *catalogService) storeInCache(ctx context.Context, code string, detail *domain.ProductDetail) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, scanCacheKeyPrefix+code, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("Scan cache write failed", zap.Error(err), zap.String("barcode", code))
	}
}

func (s *catalogService) invalidateCache(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Del(ctx, scanCacheKeyPrefix+code).Err(); err != nil {
		s.logger.Warn("Scan cache invalidation failed", zap.Error(err), zap.String("barcode", code))
	}
}
