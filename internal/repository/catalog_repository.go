package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"product-scanner/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// querier is satisfied by both *sql.DB and *sql.Tx, so the same write path
// serves the API handlers and the per-row transactions of the ingestion
// pipeline.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CatalogWriter is the write surface of the store. All writes are
// merge-upserts: inserting when absent, otherwise updating only the fields the
// caller provided — an unknown (nil) value never overwrites a known one.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, product *domain.Product) (int64, error)
	UpsertNutrition(ctx context.Context, productID int64, facts *domain.NutritionFacts) error
	UpsertImage(ctx context.Context, productID int64, imageType, imageURL string) error
}

// CatalogRepository defines the interface for catalog data access.
type CatalogRepository interface {
	CatalogWriter

	// WithinTx runs fn against a transactional writer. The transaction is
	// committed when fn returns nil and rolled back on any error or panic,
	// so one row's writes land atomically or not at all.
	WithinTx(ctx context.Context, fn func(w CatalogWriter) error) error

	FindByID(ctx context.Context, id int64) (*domain.ProductDetail, error)
	FindByBarcode(ctx context.Context, barcode string) (*domain.ProductDetail, error)
	Search(ctx context.Context, term string, page, pageSize int) ([]*domain.ProductDetail, int, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListBrands(ctx context.Context) ([]string, error)
}

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a new instance of CatalogRepository.
func NewCatalogRepository(db *sql.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

// TotalPages derives the page count for a match total and window size.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

func (r *catalogRepository) WithinTx(ctx context.Context, fn func(w CatalogWriter) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Rollback is a no-op after a successful commit; the deferred call
	// guarantees release on every exit path, panics included.
	defer tx.Rollback()

	if err := fn(&txWriter{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpsertProduct(ctx context.Context, product *domain.Product) (int64, error) {
	return upsertProduct(ctx, r.db, product)
}

func (r *catalogRepository) UpsertNutrition(ctx context.Context, productID int64, facts *domain.NutritionFacts) error {
	return upsertNutrition(ctx, r.db, productID, facts)
}

func (r *catalogRepository) UpsertImage(ctx context.Context, productID int64, imageType, imageURL string) error {
	return upsertImage(ctx, r.db, productID, imageType, imageURL)
}

// txWriter binds the shared upsert statements to one open transaction.
type txWriter struct {
	q querier
}

func (w *txWriter) UpsertProduct(ctx context.Context, product *domain.Product) (int64, error) {
	return upsertProduct(ctx, w.q, product)
}

func (w *txWriter) UpsertNutrition(ctx context.Context, productID int64, facts *domain.NutritionFacts) error {
	return upsertNutrition(ctx, w.q, productID, facts)
}

func (w *txWriter) UpsertImage(ctx context.Context, productID int64, imageType, imageURL string) error {
	return upsertImage(ctx, w.q, productID, imageType, imageURL)
}

// upsertProduct inserts a product or merge-updates the row holding its
// barcode. COALESCE keeps the stored value wherever the new one is NULL, so
// re-ingesting a sparser row never erases known attributes. The returned id is
// resolved via RETURNING, with a lookup by barcode as fallback.
func upsertProduct(ctx context.Context, q querier, product *domain.Product) (int64, error) {
	query := `
		INSERT INTO products (barcode, product_name, brand, category, description, size_value, size_unit, price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (barcode) DO UPDATE SET
			product_name = COALESCE(EXCLUDED.product_name, products.product_name),
			brand        = COALESCE(EXCLUDED.brand, products.brand),
			category     = COALESCE(EXCLUDED.category, products.category),
			description  = COALESCE(EXCLUDED.description, products.description),
			size_value   = COALESCE(EXCLUDED.size_value, products.size_value),
			size_unit    = COALESCE(EXCLUDED.size_unit, products.size_unit),
			price        = COALESCE(EXCLUDED.price, products.price),
			updated_at   = CURRENT_TIMESTAMP
		RETURNING id
	`

	// An empty name means "not provided" on a merge-update; NULL lets
	// COALESCE retain the stored name. Fresh inserts still require a name
	// through the column's NOT NULL constraint.
	name := sql.NullString{String: product.Name, Valid: product.Name != ""}

	var id int64
	err := q.QueryRowContext(
		ctx,
		query,
		product.Barcode,
		name,
		product.Brand,
		product.Category,
		product.Description,
		product.SizeValue,
		product.SizeUnit,
		product.Price,
	).Scan(&id)

	if err == sql.ErrNoRows {
		// The upsert resolved to an update that returned no row; fall
		// back to resolving the id by barcode.
		err = q.QueryRowContext(ctx, `SELECT id FROM products WHERE barcode = $1`, product.Barcode).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to upsert product: %w", err)
	}

	return id, nil
}

// upsertNutrition merge-upserts the 1:1 nutrition record of a product. Only
// fields known in facts overwrite stored values.
func upsertNutrition(ctx context.Context, q querier, productID int64, facts *domain.NutritionFacts) error {
	query := `
		INSERT INTO nutrition_facts
			(product_id, serving_size, calories_kcal,
			 total_fat_g, total_fat_akg_percent,
			 saturated_fat_g, saturated_fat_akg_percent,
			 trans_fat_g, cholesterol_mg,
			 sodium_mg, sodium_akg_percent,
			 total_carbs_g, total_carbs_akg_percent,
			 dietary_fiber_g, total_sugars_g,
			 protein_g, protein_akg_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (product_id) DO UPDATE SET
			serving_size              = COALESCE(EXCLUDED.serving_size, nutrition_facts.serving_size),
			calories_kcal             = COALESCE(EXCLUDED.calories_kcal, nutrition_facts.calories_kcal),
			total_fat_g               = COALESCE(EXCLUDED.total_fat_g, nutrition_facts.total_fat_g),
			total_fat_akg_percent     = COALESCE(EXCLUDED.total_fat_akg_percent, nutrition_facts.total_fat_akg_percent),
			saturated_fat_g           = COALESCE(EXCLUDED.saturated_fat_g, nutrition_facts.saturated_fat_g),
			saturated_fat_akg_percent = COALESCE(EXCLUDED.saturated_fat_akg_percent, nutrition_facts.saturated_fat_akg_percent),
			trans_fat_g               = COALESCE(EXCLUDED.trans_fat_g, nutrition_facts.trans_fat_g),
			cholesterol_mg            = COALESCE(EXCLUDED.cholesterol_mg, nutrition_facts.cholesterol_mg),
			sodium_mg                 = COALESCE(EXCLUDED.sodium_mg, nutrition_facts.sodium_mg),
			sodium_akg_percent        = COALESCE(EXCLUDED.sodium_akg_percent, nutrition_facts.sodium_akg_percent),
			total_carbs_g             = COALESCE(EXCLUDED.total_carbs_g, nutrition_facts.total_carbs_g),
			total_carbs_akg_percent   = COALESCE(EXCLUDED.total_carbs_akg_percent, nutrition_facts.total_carbs_akg_percent),
			dietary_fiber_g           = COALESCE(EXCLUDED.dietary_fiber_g, nutrition_facts.dietary_fiber_g),
			total_sugars_g            = COALESCE(EXCLUDED.total_sugars_g, nutrition_facts.total_sugars_g),
			protein_g                 = COALESCE(EXCLUDED.protein_g, nutrition_facts.protein_g),
			protein_akg_percent       = COALESCE(EXCLUDED.protein_akg_percent, nutrition_facts.protein_akg_percent),
			updated_at                = CURRENT_TIMESTAMP
	`

	_, err := q.ExecContext(
		ctx,
		query,
		productID,
		facts.ServingSize,
		facts.CaloriesKcal,
		facts.TotalFatG,
		facts.TotalFatAKG,
		facts.SaturatedFatG,
		facts.SaturatedFatAKG,
		facts.TransFatG,
		facts.CholesterolMg,
		facts.SodiumMg,
		facts.SodiumAKG,
		facts.TotalCarbsG,
		facts.TotalCarbsAKG,
		facts.DietaryFiberG,
		facts.TotalSugarsG,
		facts.ProteinG,
		facts.ProteinAKG,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert nutrition facts: %w", err)
	}

	return nil
}

// upsertImage stores one image per (product, type); a later write for the
// same slot replaces the URL in place.
func upsertImage(ctx context.Context, q querier, productID int64, imageType, imageURL string) error {
	query := `
		INSERT INTO product_images (product_id, image_type, image_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, image_type) DO UPDATE SET
			image_url = EXCLUDED.image_url
	`

	_, err := q.ExecContext(ctx, query, productID, imageType, imageURL)
	if err != nil {
		return fmt.Errorf("failed to upsert product image: %w", err)
	}

	return nil
}

// detailColumns is the joined projection shared by lookups and search.
const detailColumns = `
	p.id, p.barcode, p.product_name, p.brand, p.category, p.description,
	p.size_value, p.size_unit, p.price, p.created_at, p.updated_at,
	n.product_id, n.serving_size, n.calories_kcal,
	n.total_fat_g, n.total_fat_akg_percent,
	n.saturated_fat_g, n.saturated_fat_akg_percent,
	n.trans_fat_g, n.cholesterol_mg,
	n.sodium_mg, n.sodium_akg_percent,
	n.total_carbs_g, n.total_carbs_akg_percent,
	n.dietary_fiber_g, n.total_sugars_g,
	n.protein_g, n.protein_akg_percent,
	pi.image_url`

const detailJoins = `
	FROM products p
	LEFT JOIN nutrition_facts n ON n.product_id = p.id
	LEFT JOIN product_images pi ON pi.product_id = p.id AND pi.image_type = 'main'`

func scanDetail(row interface {
	Scan(dest ...interface{}) error
}) (*domain.ProductDetail, error) {
	detail := &domain.ProductDetail{}
	var nutritionID sql.NullInt64
	var n domain.NutritionFacts

	err := row.Scan(
		&detail.ID,
		&detail.Barcode,
		&detail.Name,
		&detail.Brand,
		&detail.Category,
		&detail.Description,
		&detail.SizeValue,
		&detail.SizeUnit,
		&detail.Price,
		&detail.CreatedAt,
		&detail.UpdatedAt,
		&nutritionID,
		&n.ServingSize,
		&n.CaloriesKcal,
		&n.TotalFatG,
		&n.TotalFatAKG,
		&n.SaturatedFatG,
		&n.SaturatedFatAKG,
		&n.TransFatG,
		&n.CholesterolMg,
		&n.SodiumMg,
		&n.SodiumAKG,
		&n.TotalCarbsG,
		&n.TotalCarbsAKG,
		&n.DietaryFiberG,
		&n.TotalSugarsG,
		&n.ProteinG,
		&n.ProteinAKG,
		&detail.MainImage,
	)
	if err != nil {
		return nil, err
	}

	if nutritionID.Valid {
		n.ProductID = nutritionID.Int64
		detail.Nutrition = &n
	}

	return detail, nil
}

// FindByID retrieves a product with its nutrition record and main image.
func (r *catalogRepository) FindByID(ctx context.Context, id int64) (*domain.ProductDetail, error) {
	query := `SELECT` + detailColumns + detailJoins + ` WHERE p.id = $1`

	detail, err := scanDetail(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return detail, nil
}

// FindByBarcode retrieves a product by its exact barcode.
func (r *catalogRepository) FindByBarcode(ctx context.Context, barcode string) (*domain.ProductDetail, error) {
	query := `SELECT` + detailColumns + detailJoins + ` WHERE p.barcode = $1`

	detail, err := scanDetail(r.db.QueryRowContext(ctx, query, barcode))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by barcode: %w", err)
	}

	return detail, nil
}

// Search returns one relevance-ordered page of catalog entries matching term,
// plus the total match count irrespective of the window. An entry matches
// when term appears case-insensitively in name, brand or description, or
// equals the barcode exactly. Exact barcode matches rank first, then name
// prefixes, then brand prefixes, then remaining substring matches; ties break
// on name ascending. The ordering depends only on the term and stored rows,
// so identical calls against an unchanged store return identical pages.
func (r *catalogRepository) Search(ctx context.Context, term string, page, pageSize int) ([]*domain.ProductDetail, int, error) {
	substring := "%" + term + "%"
	prefix := term + "%"
	offset := (page - 1) * pageSize

	countQuery := `
		SELECT COUNT(*)
		FROM products p
		WHERE p.product_name ILIKE $1 OR p.brand ILIKE $1 OR p.description ILIKE $1 OR p.barcode = $2
	`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, substring, term).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	searchQuery := `SELECT` + detailColumns + detailJoins + `
		WHERE p.product_name ILIKE $1 OR p.brand ILIKE $1 OR p.description ILIKE $1 OR p.barcode = $2
		ORDER BY
			CASE
				WHEN p.barcode = $2 THEN 1
				WHEN p.product_name ILIKE $3 THEN 2
				WHEN p.brand ILIKE $3 THEN 3
				ELSE 4
			END,
			p.product_name ASC
		LIMIT $4 OFFSET $5
	`

	rows, err := r.db.QueryContext(ctx, searchQuery, substring, term, prefix, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	results := []*domain.ProductDetail{}
	for rows.Next() {
		detail, err := scanDetail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, detail)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, total, nil
}

// ListCategories returns the distinct non-empty categories, name ascending.
func (r *catalogRepository) ListCategories(ctx context.Context) ([]string, error) {
	return r.listDistinct(ctx, `
		SELECT DISTINCT category FROM products
		WHERE category IS NOT NULL AND category <> ''
		ORDER BY category ASC
	`)
}

// ListBrands returns the distinct non-empty brands, name ascending.
func (r *catalogRepository) ListBrands(ctx context.Context) ([]string, error) {
	return r.listDistinct(ctx, `
		SELECT DISTINCT brand FROM products
		WHERE brand IS NOT NULL AND brand <> ''
		ORDER BY brand ASC
	`)
}

func (r *catalogRepository) listDistinct(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list values: %w", err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		values = append(values, v)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating values: %w", err)
	}

	return values, nil
}
