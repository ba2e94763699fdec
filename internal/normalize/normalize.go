// Package normalize maps raw spreadsheet rows with arbitrarily spelled column
// labels onto canonical catalog attributes. Upstream files are not controlled
// by this service: headers arrive in mixed languages, casing, spacing and
// punctuation ("Nama Produk", "namaproduk" and "product_name" all mean the
// same column), numbers may use comma decimals, and image links are often
// shareable drive URLs instead of direct ones.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"product-scanner/internal/barcode"
	"product-scanner/internal/domain"
)

// ErrMissingRequiredField marks a row without a usable barcode or product
// name. It is a skip reason for the ingestion pipeline, not a hard failure.
var ErrMissingRequiredField = errors.New("row is missing barcode or product name")

// Canonical attribute names produced by the alias table.
const (
	FieldBarcode         = "barcode"
	FieldProductName     = "product_name"
	FieldBrand           = "brand"
	FieldCategory        = "category"
	FieldDescription     = "description"
	FieldSizeValue       = "size_value"
	FieldSizeUnit        = "size_unit"
	FieldPrice           = "price"
	FieldServingSize     = "serving_size"
	FieldCaloriesKcal    = "calories_kcal"
	FieldTotalFatG       = "total_fat_g"
	FieldTotalFatAKG     = "total_fat_akg"
	FieldSaturatedFatG   = "saturated_fat_g"
	FieldSaturatedFatAKG = "saturated_fat_akg"
	FieldTransFatG       = "trans_fat_g"
	FieldCholesterolMg   = "cholesterol_mg"
	FieldSodiumMg        = "sodium_mg"
	FieldSodiumAKG       = "sodium_akg"
	FieldTotalCarbsG     = "total_carbs_g"
	FieldTotalCarbsAKG   = "total_carbs_akg"
	FieldDietaryFiberG   = "dietary_fiber_g"
	FieldTotalSugarsG    = "total_sugars_g"
	FieldProteinG        = "protein_g"
	FieldProteinAKG      = "protein_akg"
	FieldImageURL        = "image_url"
)

// fieldAliases lists, per canonical attribute, the normalized header
// spellings (see normalizeLabel) that may carry it, in precedence order: the
// first alias present with a non-blank value wins, so resolution is a fixed
// fallback chain rather than a map walk. The Indonesian spellings come from
// the bulk spreadsheets, the English ones from the API write path. The bare
// "akg" and "akg_1" entries cover the two-column "Nutrien | % AKG" layout,
// where the first unnamed companion follows the carbohydrate column and the
// second follows sodium.
var fieldAliases = []struct {
	field   string
	aliases []string
}{
	{FieldBarcode, []string{"kodebarcode", "barcode", "kodebar"}},
	{FieldProductName, []string{"namaproduk", "productname", "product_name", "nama"}},
	{FieldBrand, []string{"produksi", "produsen", "merek", "brand"}},
	{FieldCategory, []string{"kategori", "category"}},
	{FieldDescription, []string{"deskripsi", "description"}},
	{FieldSizeValue, []string{"ukuran/berat", "ukuran", "berat", "weight", "size_value"}},
	{FieldSizeUnit, []string{"satuan", "unit", "size_unit"}},
	{FieldPrice, []string{"harga", "price"}},
	{FieldServingSize, []string{"takaransaji", "servingsize", "serving_size"}},
	{FieldCaloriesKcal, []string{"kaloritotalkkal", "kaloritotal", "kalori", "calories", "calories_kcal"}},
	{FieldTotalFatG, []string{"lemaktot", "lemaktotal", "lemakgr", "lemak", "totalfat", "total_fat", "total_fat_g"}},
	{FieldTotalFatAKG, []string{"lemaktotakg", "lemakakg", "totalfatakg"}},
	{FieldSaturatedFatG, []string{"lemakjen", "lemakjenuh", "lemakjenuhgr", "saturatedfat", "saturated_fat", "saturated_fat_g"}},
	{FieldSaturatedFatAKG, []string{"lemakjenakg", "lemakjenuhakg", "saturatedfatakg", "saturated_fatakg"}},
	{FieldTransFatG, []string{"lemaktrans", "transfat", "trans_fat", "trans_fat_g"}},
	{FieldCholesterolMg, []string{"kolesterolmg", "kolesterol", "cholesterol", "cholesterol_mg"}},
	{FieldSodiumMg, []string{"garammg", "garam", "natriummg", "natrium", "sodium", "sodium_mg"}},
	{FieldSodiumAKG, []string{"akg_1", "garamakg", "natriumakg", "sodiumakg"}},
	{FieldTotalCarbsG, []string{"karbohidrattot", "karbohidrat", "karbohidratgr", "totalcarbs", "total_carbs", "total_carbs_g"}},
	{FieldTotalCarbsAKG, []string{"akg", "karbohidratakg", "karbohidrattotakg", "totalcarbsakg"}},
	{FieldDietaryFiberG, []string{"serat", "seratpangan", "fiber", "dietaryfiber", "dietary_fiber"}},
	{FieldTotalSugarsG, []string{"gulatotalgr", "gulatotal", "gula", "sugar", "totalsugars", "total_sugars"}},
	{FieldProteinG, []string{"protein", "proteingr", "protein_g"}},
	{FieldProteinAKG, []string{"proteinakg", "protein_akg"}},
	{FieldImageURL, []string{"linkgambar", "linkgambar1", "linkgambar2", "gambar", "link", "imageurl", "image_url"}},
}

var labelStripper = strings.NewReplacer("(", "", ")", "", "%", "", ".", "")

// normalizeLabel lowercases a header and strips whitespace, parentheses,
// percent signs and periods, so near-duplicate spellings collapse to one key.
func normalizeLabel(label string) string {
	lower := strings.ToLower(label)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch r {
		case ' ', '\t', '\n', '\r', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return labelStripper.Replace(b.String())
}

// CanonicalRow is the normalized representation of one ingestion input row,
// ready for store writes. Barcode and Name are always set; everything else is
// nil when unknown.
type CanonicalRow struct {
	Barcode     string
	Name        string
	Brand       *string
	Category    *string
	Description *string
	SizeValue   *float64
	SizeUnit    *string
	Price       *float64
	Nutrition   domain.NutritionFacts
	ImageURL    *string
}

// Row resolves a raw label->value mapping into a CanonicalRow. Resolution is
// deterministic: raw labels are indexed in sorted order, then every canonical
// attribute is filled from its fixed alias chain, so the same raw row always
// yields the same result regardless of map iteration order. Rows whose
// barcode or product name is missing or blank return ErrMissingRequiredField.
func Row(raw map[string]any) (*CanonicalRow, error) {
	labels := make([]string, 0, len(raw))
	for label := range raw {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	lookup := make(map[string]any, len(raw))
	for _, label := range labels {
		key := normalizeLabel(label)
		// Distinct raw labels can collapse to one key ("Link Gambar",
		// "LINKGAMBAR"); the sorted-first non-blank value wins.
		if existing, seen := lookup[key]; seen && !isEmpty(existing) {
			continue
		}
		lookup[key] = raw[label]
	}

	fields := make(map[string]any, len(fieldAliases))
	for _, fa := range fieldAliases {
		for _, alias := range fa.aliases {
			if value, ok := lookup[alias]; ok && !isEmpty(value) {
				fields[fa.field] = value
				break
			}
		}
	}

	code := barcode.Sanitize(stringValue(fields[FieldBarcode]))
	name := strings.TrimSpace(stringValue(fields[FieldProductName]))
	if code == "" || name == "" {
		return nil, ErrMissingRequiredField
	}

	row := &CanonicalRow{
		Barcode:     code,
		Name:        name,
		Brand:       optString(fields[FieldBrand]),
		Category:    optString(fields[FieldCategory]),
		Description: optString(fields[FieldDescription]),
		SizeValue:   Number(fields[FieldSizeValue]),
		SizeUnit:    optString(fields[FieldSizeUnit]),
		Price:       Number(fields[FieldPrice]),
		Nutrition: domain.NutritionFacts{
			ServingSize:     optString(fields[FieldServingSize]),
			CaloriesKcal:    Number(fields[FieldCaloriesKcal]),
			TotalFatG:       Number(fields[FieldTotalFatG]),
			TotalFatAKG:     Number(fields[FieldTotalFatAKG]),
			SaturatedFatG:   Number(fields[FieldSaturatedFatG]),
			SaturatedFatAKG: Number(fields[FieldSaturatedFatAKG]),
			TransFatG:       Number(fields[FieldTransFatG]),
			CholesterolMg:   Number(fields[FieldCholesterolMg]),
			SodiumMg:        Number(fields[FieldSodiumMg]),
			SodiumAKG:       Number(fields[FieldSodiumAKG]),
			TotalCarbsG:     Number(fields[FieldTotalCarbsG]),
			TotalCarbsAKG:   Number(fields[FieldTotalCarbsAKG]),
			DietaryFiberG:   Number(fields[FieldDietaryFiberG]),
			TotalSugarsG:    Number(fields[FieldTotalSugarsG]),
			ProteinG:        Number(fields[FieldProteinG]),
			ProteinAKG:      Number(fields[FieldProteinAKG]),
		},
	}

	if link := strings.TrimSpace(stringValue(fields[FieldImageURL])); link != "" {
		direct := DriveDirectURL(link)
		row.ImageURL = &direct
	}

	return row, nil
}

// Number parses a locale-flexible numeric value. Comma decimal separators are
// accepted; anything unparseable is unknown (nil), never zero, so downstream
// merge semantics are preserved.
func Number(value any) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	default:
		s := strings.ReplaceAll(strings.TrimSpace(fmt.Sprintf("%v", v)), ",", ".")
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	}
}

var (
	drivePathIDPattern  = regexp.MustCompile(`/d/([^/?#]+)`)
	driveQueryIDPattern = regexp.MustCompile(`[?&]id=([^&]+)`)
)

// DriveDirectURL rewrites a shareable drive viewing link to a direct-view URL
// by extracting the embedded file identifier. Values without an identifier
// pass through unchanged.
func DriveDirectURL(url string) string {
	id := ""
	if m := drivePathIDPattern.FindStringSubmatch(url); m != nil {
		id = m[1]
	} else if m := driveQueryIDPattern.FindStringSubmatch(url); m != nil {
		id = m[1]
	}
	if id == "" {
		return url
	}
	return "https://drive.google.com/uc?export=view&id=" + id
}

func stringValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// Spreadsheet cells frequently deliver barcodes as numbers.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func optString(value any) *string {
	s := strings.TrimSpace(stringValue(value))
	if s == "" {
		return nil
	}
	return &s
}

func isEmpty(value any) bool {
	return strings.TrimSpace(stringValue(value)) == ""
}
