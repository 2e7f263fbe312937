package identifier

import (
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"900.123.456-7", "9001234567"},
		{"  830 012 345 ", "830012345"},
		{"NIT: 12345678", "12345678"},
		{"", ""},
		{"sin datos", ""},
		{"79142355", "79142355"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Clean(tt.input)
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
			for _, r := range got {
				if r < '0' || r > '9' {
					t.Errorf("Clean(%q) produced non-digit %q", tt.input, r)
				}
			}
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	inputs := []string{"900.123.456-7", "abc", "", "12 34", "8-0-0"}
	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestExtractReferenceToken(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"first digit token wins", "Factura No 000123 Servicio", "000123", true},
		{"leading token with digit", "FE1234 arrendamiento bodega", "FE1234", true},
		{"blank input", "   ", "", false},
		{"empty input", "", "", false},
		{"no digit token", "Servicio de aseo", "", false},
		{"digits only", "98765", "98765", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractReferenceToken(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractReferenceToken(%q) = (%q, %v), want (%q, %v)",
					tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClassifyPersonType(t *testing.T) {
	tests := []struct {
		taxID      string
		wantType   string
		wantIDType string
	}{
		{"900123456", PersonTypeCompany, IDTypeCompany},
		{"830012345", PersonTypeCompany, IDTypeCompany},
		{"700123456", PersonTypePerson, IDTypePerson},
		{"79142355", PersonTypePerson, IDTypePerson},   // 8 digits
		{"9001234567", PersonTypePerson, IDTypePerson}, // 10 digits
		{"", PersonTypePerson, IDTypePerson},
	}

	for _, tt := range tests {
		t.Run(tt.taxID, func(t *testing.T) {
			personType, idType := ClassifyPersonType(tt.taxID)
			if personType != tt.wantType || idType != tt.wantIDType {
				t.Errorf("ClassifyPersonType(%q) = (%q, %q), want (%q, %q)",
					tt.taxID, personType, idType, tt.wantType, tt.wantIDType)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"1.234.567,89", "1234567.89", true},
		{"1,234,567.89", "1234567.89", true},
		{"$ 2.500.000", "2500000", true},
		{"1234,5", "1234.5", true},
		{"1234.56", "1234.56", true},
		{"-15000", "-15000", true},
		{"", "0", false},
		{"-", "0", false},
		{"n/a", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseAmount(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}
