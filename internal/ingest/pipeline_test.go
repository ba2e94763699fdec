package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"product-scanner/internal/domain"
	"product-scanner/internal/repository"

	"go.uber.org/zap"
)

// mockCatalog is an in-memory CatalogRepository with merge-upsert semantics
// and transactional rollback, so pipeline atomicity is observable.
type mockCatalog struct {
	nextID    int64
	products  map[string]*domain.Product
	nutrition map[int64]*domain.NutritionFacts
	images    map[string]string

	// failNutritionFor induces a store failure when upserting nutrition
	// for the given barcode's product.
	failNutritionFor map[string]bool
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{
		products:         make(map[string]*domain.Product),
		nutrition:        make(map[int64]*domain.NutritionFacts),
		images:           make(map[string]string),
		failNutritionFor: make(map[string]bool),
	}
}

func (m *mockCatalog) UpsertProduct(ctx context.Context, p *domain.Product) (int64, error) {
	existing, ok := m.products[p.Barcode]
	if !ok {
		m.nextID++
		stored := *p
		stored.ID = m.nextID
		m.products[p.Barcode] = &stored
		return stored.ID, nil
	}

	if p.Name != "" {
		existing.Name = p.Name
	}
	mergeStr(&existing.Brand, p.Brand)
	mergeStr(&existing.Category, p.Category)
	mergeStr(&existing.Description, p.Description)
	mergeNum(&existing.SizeValue, p.SizeValue)
	mergeStr(&existing.SizeUnit, p.SizeUnit)
	mergeNum(&existing.Price, p.Price)
	return existing.ID, nil
}

func (m *mockCatalog) UpsertNutrition(ctx context.Context, productID int64, facts *domain.NutritionFacts) error {
	for code, p := range m.products {
		if p.ID == productID && m.failNutritionFor[code] {
			return errors.New("store failure")
		}
	}

	existing, ok := m.nutrition[productID]
	if !ok {
		stored := *facts
		stored.ProductID = productID
		m.nutrition[productID] = &stored
		return nil
	}

	mergeStr(&existing.ServingSize, facts.ServingSize)
	mergeNum(&existing.CaloriesKcal, facts.CaloriesKcal)
	mergeNum(&existing.TotalFatG, facts.TotalFatG)
	mergeNum(&existing.TotalFatAKG, facts.TotalFatAKG)
	mergeNum(&existing.SaturatedFatG, facts.SaturatedFatG)
	mergeNum(&existing.SaturatedFatAKG, facts.SaturatedFatAKG)
	mergeNum(&existing.TransFatG, facts.TransFatG)
	mergeNum(&existing.CholesterolMg, facts.CholesterolMg)
	mergeNum(&existing.SodiumMg, facts.SodiumMg)
	mergeNum(&existing.SodiumAKG, facts.SodiumAKG)
	mergeNum(&existing.TotalCarbsG, facts.TotalCarbsG)
	mergeNum(&existing.TotalCarbsAKG, facts.TotalCarbsAKG)
	mergeNum(&existing.DietaryFiberG, facts.DietaryFiberG)
	mergeNum(&existing.TotalSugarsG, facts.TotalSugarsG)
	mergeNum(&existing.ProteinG, facts.ProteinG)
	mergeNum(&existing.ProteinAKG, facts.ProteinAKG)
	return nil
}

func (m *mockCatalog) UpsertImage(ctx context.Context, productID int64, imageType, imageURL string) error {
	m.images[fmt.Sprintf("%d:%s", productID, imageType)] = imageURL
	return nil
}

func (m *mockCatalog) WithinTx(ctx context.Context, fn func(w repository.CatalogWriter) error) error {
	snapshot := m.clone()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

func (m *mockCatalog) FindByID(ctx context.Context, id int64) (*domain.ProductDetail, error) {
	for _, p := range m.products {
		if p.ID == id {
			return m.detail(p), nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockCatalog) FindByBarcode(ctx context.Context, code string) (*domain.ProductDetail, error) {
	p, ok := m.products[code]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return m.detail(p), nil
}

func (m *mockCatalog) Search(ctx context.Context, term string, page, pageSize int) ([]*domain.ProductDetail, int, error) {
	return nil, 0, nil
}

func (m *mockCatalog) ListCategories(ctx context.Context) ([]string, error) { return nil, nil }
func (m *mockCatalog) ListBrands(ctx context.Context) ([]string, error)     { return nil, nil }

func (m *mockCatalog) detail(p *domain.Product) *domain.ProductDetail {
	d := &domain.ProductDetail{Product: *p}
	if n, ok := m.nutrition[p.ID]; ok {
		facts := *n
		d.Nutrition = &facts
	}
	if url, ok := m.images[fmt.Sprintf("%d:%s", p.ID, domain.ImageTypeMain)]; ok {
		d.MainImage = &url
	}
	return d
}

func (m *mockCatalog) clone() *mockCatalog {
	c := newMockCatalog()
	c.nextID = m.nextID
	for k, v := range m.products {
		p := *v
		c.products[k] = &p
	}
	for k, v := range m.nutrition {
		n := *v
		c.nutrition[k] = &n
	}
	for k, v := range m.images {
		c.images[k] = v
	}
	return c
}

func (m *mockCatalog) restore(c *mockCatalog) {
	m.nextID = c.nextID
	m.products = c.products
	m.nutrition = c.nutrition
	m.images = c.images
}

func mergeStr(dst **string, src *string) {
	if src != nil {
		*dst = src
	}
}

func mergeNum(dst **float64, src *float64) {
	if src != nil {
		*dst = src
	}
}

func validRow(barcode, name string, extra map[string]any) map[string]any {
	row := map[string]any{
		"Kode Barcode": barcode,
		"Nama Produk":  name,
	}
	for k, v := range extra {
		row[k] = v
	}
	return row
}

func TestRun_SingleValidRow(t *testing.T) {
	store := newMockCatalog()
	pipeline := NewPipeline(store, zap.NewNop())

	summary := pipeline.Run(context.Background(), []map[string]any{
		validRow("8991234567890", "Mie Instan Goreng", map[string]any{
			"Produksi":            "PT Pangan Jaya",
			"Kalori Total (kkal)": "380",
			"Link Gambar":         "https://drive.google.com/file/d/1AbC/view",
		}),
	})

	if summary.OK != 1 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v, want ok=1 skipped=0", summary)
	}

	detail, err := store.FindByBarcode(context.Background(), "8991234567890")
	if err != nil {
		t.Fatalf("product not stored: %v", err)
	}
	if detail.Name != "Mie Instan Goreng" {
		t.Errorf("Name = %q", detail.Name)
	}
	if detail.Nutrition == nil || detail.Nutrition.CaloriesKcal == nil || *detail.Nutrition.CaloriesKcal != 380 {
		t.Errorf("nutrition not stored: %+v", detail.Nutrition)
	}
	if detail.MainImage == nil || *detail.MainImage != "https://drive.google.com/uc?export=view&id=1AbC" {
		t.Errorf("image not stored or not rewritten: %v", detail.MainImage)
	}
}

func TestRun_IngestionIsIdempotent(t *testing.T) {
	store := newMockCatalog()
	pipeline := NewPipeline(store, zap.NewNop())
	row := validRow("8991234567890", "Mie Instan Goreng", map[string]any{"Produksi": "PT Pangan Jaya"})

	pipeline.Run(context.Background(), []map[string]any{row})
	pipeline.Run(context.Background(), []map[string]any{row})

	if len(store.products) != 1 {
		t.Fatalf("products stored = %d, want exactly 1", len(store.products))
	}
}

func TestRun_SecondPassOverwritesOnlySpecifiedFields(t *testing.T) {
	store := newMockCatalog()
	pipeline := NewPipeline(store, zap.NewNop())

	pipeline.Run(context.Background(), []map[string]any{
		validRow("8991234567890", "Mie Instan", map[string]any{"Protein": "8"}),
	})
	pipeline.Run(context.Background(), []map[string]any{
		validRow("8991234567890", "Mie Instan Goreng", map[string]any{"Kalori Total (kkal)": "380"}),
	})

	detail, err := store.FindByBarcode(context.Background(), "8991234567890")
	if err != nil {
		t.Fatalf("product not stored: %v", err)
	}
	if detail.Name != "Mie Instan Goreng" {
		t.Errorf("Name = %q, want updated name", detail.Name)
	}
	if detail.Nutrition.ProteinG == nil || *detail.Nutrition.ProteinG != 8 {
		t.Errorf("ProteinG = %v: calories-only row must not erase protein", detail.Nutrition.ProteinG)
	}
	if detail.Nutrition.CaloriesKcal == nil || *detail.Nutrition.CaloriesKcal != 380 {
		t.Errorf("CaloriesKcal = %v, want 380", detail.Nutrition.CaloriesKcal)
	}
}

func TestRun_RowIsolation(t *testing.T) {
	store := newMockCatalog()
	pipeline := NewPipeline(store, zap.NewNop())

	rows := []map[string]any{
		validRow("8991111111111", "Produk Satu", nil),
		{"Nama Produk": "Tanpa Barcode"}, // missing barcode
		validRow("8992222222222", "Produk Dua", nil),
		validRow("8993333333333", "Produk Tiga", nil),
	}

	summary := pipeline.Run(context.Background(), rows)

	if summary.OK != 3 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want ok=3 skipped=1", summary)
	}
	for _, code := range []string{"8991111111111", "8992222222222", "8993333333333"} {
		if _, err := store.FindByBarcode(context.Background(), code); err != nil {
			t.Errorf("row %s not committed: %v", code, err)
		}
	}
}

func TestRun_StoreFailureRollsBackRowAndContinues(t *testing.T) {
	store := newMockCatalog()
	store.failNutritionFor["8992222222222"] = true
	pipeline := NewPipeline(store, zap.NewNop())

	summary := pipeline.Run(context.Background(), []map[string]any{
		validRow("8991111111111", "Produk Satu", map[string]any{"Protein": "5"}),
		validRow("8992222222222", "Produk Dua", map[string]any{"Protein": "5"}),
		validRow("8993333333333", "Produk Tiga", map[string]any{"Protein": "5"}),
	})

	if summary.OK != 2 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want ok=2 skipped=1", summary)
	}

	// The failed row's product upsert must have been rolled back with it.
	if _, err := store.FindByBarcode(context.Background(), "8992222222222"); !errors.Is(err, repository.ErrProductNotFound) {
		t.Errorf("failed row left partial state: err = %v", err)
	}
	if _, err := store.FindByBarcode(context.Background(), "8993333333333"); err != nil {
		t.Errorf("row after the failure was not committed: %v", err)
	}
}

func TestRun_StructurallyInvalidBarcodeSkipped(t *testing.T) {
	store := newMockCatalog()
	pipeline := NewPipeline(store, zap.NewNop())

	summary := pipeline.Run(context.Background(), []map[string]any{
		validRow("1234567", "Terlalu Pendek", nil), // 7 digits
	})

	if summary.OK != 0 || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, want ok=0 skipped=1", summary)
	}
	if len(store.products) != 0 {
		t.Errorf("invalid row reached the store")
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	pipeline := NewPipeline(newMockCatalog(), zap.NewNop())

	summary := pipeline.Run(context.Background(), nil)
	if summary.OK != 0 || summary.Skipped != 0 {
		t.Fatalf("summary = %+v, want zero counts", summary)
	}
}
