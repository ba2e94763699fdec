package normalize

import (
	"errors"
	"testing"
)

func TestRow_IndonesianHeaders(t *testing.T) {
	raw := map[string]any{
		"Nama Produk":         "Mie Instan Goreng",
		"Produksi":            "PT Pangan Jaya",
		"Ukuran/Berat":        "85",
		"Satuan":              "gr",
		"Kode Barcode":        " 899 1234 567890 ",
		"Kalori Total (kkal)": "380",
		"Gula Total (gr)":     "7,5",
		"Karbohidrat Tot":     "52",
		"% AKG":               "16",
		"Lemak Tot":           "14",
		"Lemak Tot % AKG":     "21",
		"Lemak Jen":           "6",
		"Lemak Jen % AKG":     "30",
		"Protein":             "8",
		"Protein % AKG":       "13",
		"Garam (mg)":          "1070",
		"% AKG_1":             "47",
		"Link Gambar":         "https://drive.google.com/file/d/1AbC_dEf/view?usp=sharing",
	}

	row, err := Row(raw)
	if err != nil {
		t.Fatalf("Row() returned error: %v", err)
	}

	if row.Barcode != "8991234567890" {
		t.Errorf("Barcode = %q, want 8991234567890", row.Barcode)
	}
	if row.Name != "Mie Instan Goreng" {
		t.Errorf("Name = %q", row.Name)
	}
	if row.Brand == nil || *row.Brand != "PT Pangan Jaya" {
		t.Errorf("Brand = %v, want PT Pangan Jaya", row.Brand)
	}
	if row.SizeValue == nil || *row.SizeValue != 85 {
		t.Errorf("SizeValue = %v, want 85", row.SizeValue)
	}
	if row.Nutrition.TotalSugarsG == nil || *row.Nutrition.TotalSugarsG != 7.5 {
		t.Errorf("TotalSugarsG = %v, want 7.5 (comma decimal)", row.Nutrition.TotalSugarsG)
	}
	if row.Nutrition.TotalCarbsAKG == nil || *row.Nutrition.TotalCarbsAKG != 16 {
		t.Errorf("TotalCarbsAKG = %v, want 16 (bare %%AKG companion)", row.Nutrition.TotalCarbsAKG)
	}
	if row.Nutrition.SodiumAKG == nil || *row.Nutrition.SodiumAKG != 47 {
		t.Errorf("SodiumAKG = %v, want 47 (%%AKG_1 companion)", row.Nutrition.SodiumAKG)
	}
	want := "https://drive.google.com/uc?export=view&id=1AbC_dEf"
	if row.ImageURL == nil || *row.ImageURL != want {
		t.Errorf("ImageURL = %v, want %q", row.ImageURL, want)
	}
}

func TestRow_EnglishHeaders(t *testing.T) {
	raw := map[string]any{
		"product_name": "Instant Noodles",
		"brand":        "Acme",
		"barcode":      "12345678",
		"calories":     380.0,
		"protein":      8.0,
	}

	row, err := Row(raw)
	if err != nil {
		t.Fatalf("Row() returned error: %v", err)
	}
	if row.Barcode != "12345678" || row.Name != "Instant Noodles" {
		t.Errorf("unexpected row identity: %q %q", row.Barcode, row.Name)
	}
	if row.Nutrition.CaloriesKcal == nil || *row.Nutrition.CaloriesKcal != 380 {
		t.Errorf("CaloriesKcal = %v, want 380", row.Nutrition.CaloriesKcal)
	}
}

func TestRow_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"no barcode", map[string]any{"Nama Produk": "X"}},
		{"blank barcode", map[string]any{"Nama Produk": "X", "Kode Barcode": "   "}},
		{"barcode without digits", map[string]any{"Nama Produk": "X", "Kode Barcode": "n/a"}},
		{"no name", map[string]any{"Kode Barcode": "8991234567890"}},
		{"blank name", map[string]any{"Nama Produk": " ", "Kode Barcode": "8991234567890"}},
		{"empty row", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Row(tt.raw); !errors.Is(err, ErrMissingRequiredField) {
				t.Errorf("Row() = %v, want ErrMissingRequiredField", err)
			}
		})
	}
}

func TestRow_NumericBarcodeCell(t *testing.T) {
	row, err := Row(map[string]any{
		"Nama Produk":  "Teh Botol",
		"Kode Barcode": 8991234567890.0,
	})
	if err != nil {
		t.Fatalf("Row() returned error: %v", err)
	}
	if row.Barcode != "8991234567890" {
		t.Errorf("Barcode = %q, want 8991234567890", row.Barcode)
	}
}

func TestNumber(t *testing.T) {
	ptr := func(f float64) *float64 { return &f }

	tests := []struct {
		name  string
		value any
		want  *float64
	}{
		{"dot decimal", "12.5", ptr(12.5)},
		{"comma decimal", "12,5", ptr(12.5)},
		{"integer string", "42", ptr(42)},
		{"padded", "  7,25  ", ptr(7.25)},
		{"float value", 3.5, ptr(3.5)},
		{"int value", 3, ptr(3)},
		{"unparseable is unknown not zero", "n/a", nil},
		{"empty", "", nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Number(tt.value)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Number(%v) = %v, want nil", tt.value, *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("Number(%v) = %v, want %v", tt.value, got, *tt.want)
			}
		})
	}
}

func TestDriveDirectURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			"file path form",
			"https://drive.google.com/file/d/1XyZ/view?usp=sharing",
			"https://drive.google.com/uc?export=view&id=1XyZ",
		},
		{
			"open query form",
			"https://drive.google.com/open?id=1XyZ",
			"https://drive.google.com/uc?export=view&id=1XyZ",
		},
		{
			"query id with trailing params",
			"https://drive.google.com/uc?id=1XyZ&export=download",
			"https://drive.google.com/uc?export=view&id=1XyZ",
		},
		{
			"no identifier passes through",
			"https://example.com/image.png",
			"https://example.com/image.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DriveDirectURL(tt.url); got != tt.want {
				t.Errorf("DriveDirectURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Nama Produk", "namaproduk"},
		{"Kalori Total (kkal)", "kaloritotalkkal"},
		{"Lemak Tot % AKG", "lemaktotakg"},
		{"% AKG_1", "akg_1"},
		{"Kode Barcode", "kodebarcode"},
		{"ukuran/berat", "ukuran/berat"},
	}

	for _, tt := range tests {
		if got := normalizeLabel(tt.label); got != tt.want {
			t.Errorf("normalizeLabel(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestRow_DuplicateImageAliasesResolveDeterministically(t *testing.T) {
	raw := map[string]any{
		"Kode Barcode":  "8991234567890",
		"Nama Produk":   "Mie Instan Goreng",
		"Link Gambar":   "https://example.com/first.png",
		"Link Gambar 2": "https://example.com/second.png",
	}

	// Two labels feed the same attribute; the alias chain, not map
	// iteration order, must pick the winner on every call.
	for i := 0; i < 200; i++ {
		row, err := Row(raw)
		if err != nil {
			t.Fatalf("Row() returned error: %v", err)
		}
		if row.ImageURL == nil || *row.ImageURL != "https://example.com/first.png" {
			t.Fatalf("call %d: ImageURL = %v, want the first-chain value", i, row.ImageURL)
		}
	}
}

func TestRow_AliasPrecedence(t *testing.T) {
	t.Run("earlier alias outranks later one", func(t *testing.T) {
		raw := map[string]any{
			"Kode Barcode": "8991234567890",
			"Nama Produk":  "Mie Instan Goreng",
			"Harga":        "2500",
			"Price":        "9999",
		}
		row, err := Row(raw)
		if err != nil {
			t.Fatalf("Row() returned error: %v", err)
		}
		if row.Price == nil || *row.Price != 2500 {
			t.Errorf("Price = %v, want 2500 from the Harga column", row.Price)
		}
	})

	t.Run("blank value falls through the chain", func(t *testing.T) {
		raw := map[string]any{
			"Kode Barcode": "8991234567890",
			"Nama Produk":  "Mie Instan Goreng",
			"Harga":        "  ",
			"Price":        "2000",
		}
		row, err := Row(raw)
		if err != nil {
			t.Fatalf("Row() returned error: %v", err)
		}
		if row.Price == nil || *row.Price != 2000 {
			t.Errorf("Price = %v, want 2000 from the fallback column", row.Price)
		}
	})
}
