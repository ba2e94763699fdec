package domain

import "time"

// Product represents a catalog entry, uniquely addressed by its barcode.
// Optional attributes are pointers so that "unknown" is distinguishable from
// a zero value; merge-upserts must never overwrite a known value with unknown.
type Product struct {
	ID          int64     `json:"id" db:"id"`
	Barcode     string    `json:"barcode" db:"barcode"`
	Name        string    `json:"product_name" db:"product_name"`
	Brand       *string   `json:"brand" db:"brand"`
	Category    *string   `json:"category" db:"category"`
	Description *string   `json:"description" db:"description"`
	SizeValue   *float64  `json:"size_value" db:"size_value"`
	SizeUnit    *string   `json:"size_unit" db:"size_unit"`
	Price       *float64  `json:"price" db:"price"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// NutritionFacts is the 1:1 nutrition record of a product. Every field is
// optional; a partial set of fields may be known at any time. The *AKG fields
// are "% of reference daily intake" companions as printed on local labels.
type NutritionFacts struct {
	ProductID       int64    `json:"-" db:"product_id"`
	ServingSize     *string  `json:"serving_size" db:"serving_size"`
	CaloriesKcal    *float64 `json:"calories_kcal" db:"calories_kcal"`
	TotalFatG       *float64 `json:"total_fat_g" db:"total_fat_g"`
	TotalFatAKG     *float64 `json:"total_fat_akg_percent" db:"total_fat_akg_percent"`
	SaturatedFatG   *float64 `json:"saturated_fat_g" db:"saturated_fat_g"`
	SaturatedFatAKG *float64 `json:"saturated_fat_akg_percent" db:"saturated_fat_akg_percent"`
	TransFatG       *float64 `json:"trans_fat_g" db:"trans_fat_g"`
	CholesterolMg   *float64 `json:"cholesterol_mg" db:"cholesterol_mg"`
	SodiumMg        *float64 `json:"sodium_mg" db:"sodium_mg"`
	SodiumAKG       *float64 `json:"sodium_akg_percent" db:"sodium_akg_percent"`
	TotalCarbsG     *float64 `json:"total_carbs_g" db:"total_carbs_g"`
	TotalCarbsAKG   *float64 `json:"total_carbs_akg_percent" db:"total_carbs_akg_percent"`
	DietaryFiberG   *float64 `json:"dietary_fiber_g" db:"dietary_fiber_g"`
	TotalSugarsG    *float64 `json:"total_sugars_g" db:"total_sugars_g"`
	ProteinG        *float64 `json:"protein_g" db:"protein_g"`
	ProteinAKG      *float64 `json:"protein_akg_percent" db:"protein_akg_percent"`
}

// IsEmpty reports whether no nutrition field is known.
func (n *NutritionFacts) IsEmpty() bool {
	if n == nil {
		return true
	}
	return n.ServingSize == nil &&
		n.CaloriesKcal == nil &&
		n.TotalFatG == nil && n.TotalFatAKG == nil &&
		n.SaturatedFatG == nil && n.SaturatedFatAKG == nil &&
		n.TransFatG == nil &&
		n.CholesterolMg == nil &&
		n.SodiumMg == nil && n.SodiumAKG == nil &&
		n.TotalCarbsG == nil && n.TotalCarbsAKG == nil &&
		n.DietaryFiberG == nil &&
		n.TotalSugarsG == nil &&
		n.ProteinG == nil && n.ProteinAKG == nil
}

// Caloric conversion factors (kcal per gram).
const (
	KcalPerGramCarbs   = 4.0
	KcalPerGramProtein = 4.0
	KcalPerGramFat     = 9.0
)

// MacroBreakdown holds the share of total calories contributed by each
// macronutrient. It is derived at read time from the stored grams and is
// never persisted.
type MacroBreakdown struct {
	CarbsPercent   *float64 `json:"carbs_percent_of_calories"`
	FatPercent     *float64 `json:"fat_percent_of_calories"`
	ProteinPercent *float64 `json:"protein_percent_of_calories"`
}

// MacroBreakdown computes the macro-composition percentages. A percentage is
// only computed when both the calorie total and the macro's gram value are
// known; unknown inputs yield an unknown percentage, never a placeholder.
func (n *NutritionFacts) MacroBreakdown() *MacroBreakdown {
	if n == nil || n.CaloriesKcal == nil || *n.CaloriesKcal <= 0 {
		return nil
	}
	kcal := *n.CaloriesKcal
	pct := func(grams *float64, factor float64) *float64 {
		if grams == nil {
			return nil
		}
		v := *grams * factor / kcal * 100
		return &v
	}
	b := &MacroBreakdown{
		CarbsPercent:   pct(n.TotalCarbsG, KcalPerGramCarbs),
		FatPercent:     pct(n.TotalFatG, KcalPerGramFat),
		ProteinPercent: pct(n.ProteinG, KcalPerGramProtein),
	}
	if b.CarbsPercent == nil && b.FatPercent == nil && b.ProteinPercent == nil {
		return nil
	}
	return b
}

// ProductImage is one stored image reference for a product. At most one image
// exists per (product, type) pair; a later write replaces the URL in place.
type ProductImage struct {
	ID        int64     `json:"id" db:"id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	ImageURL  string    `json:"image_url" db:"image_url"`
	ImageType string    `json:"image_type" db:"image_type"`
	AltText   *string   `json:"alt_text" db:"alt_text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ImageTypeMain is the image slot shown in search results and lookups.
const ImageTypeMain = "main"

// ProductDetail is a product joined with its nutrition record and main image,
// the shape returned by lookups and search.
type ProductDetail struct {
	Product
	Nutrition *NutritionFacts `json:"nutrition"`
	MainImage *string         `json:"main_image"`
}
