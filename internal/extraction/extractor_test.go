package extraction

import "testing"

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "already clean",
			raw:  `{"vendor": "EDF"}`,
			want: `{"vendor": "EDF"}`,
		},
		{
			name: "json fence",
			raw:  "```json\n{\"vendor\": \"EDF\"}\n```",
			want: `{"vendor": "EDF"}`,
		},
		{
			name: "bare fence",
			raw:  "```\n{\"vendor\": \"EDF\"}\n```",
			want: `{"vendor": "EDF"}`,
		},
		{
			name: "prose around object",
			raw:  "Here is the result:\n{\"vendor\": \"EDF\"}\nLet me know!",
			want: `{"vendor": "EDF"}`,
		},
		{
			name: "leading whitespace",
			raw:  "\n\n  {\"confidence\": 0.9}  ",
			want: `{"confidence": 0.9}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanModelJSON(tt.raw); got != tt.want {
				t.Errorf("cleanModelJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVendorFromFileName(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"facture_edf_mai.pdf", "EDF"},
		{"Facture-ORANGE-2025.pdf", "Orange"},
		{"amazon_commande_123.pdf", "Amazon"},
		{"releve_juin.pdf", ""},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			if got := VendorFromFileName(tt.fileName); got != tt.want {
				t.Errorf("VendorFromFileName(%q) = %q, want %q", tt.fileName, got, tt.want)
			}
		})
	}
}
