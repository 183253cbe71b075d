package document

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/ledger-intake/internal/model"
)

func TestApplyTaxDefault(t *testing.T) {
	rate := func(f float64) *float64 { return &f }
	total := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.RequireFromString(s)) }

	tests := []struct {
		name  string
		doc   model.ExtractedDocument
		rate  *float64
		want  string
		valid bool
	}{
		{"applied", model.ExtractedDocument{TotalAmount: total("100.05")}, rate(0.08), "8.00", true},
		{"rounded", model.ExtractedDocument{TotalAmount: total("19.99")}, rate(0.0825), "1.65", true},
		{"extracted tax kept", model.ExtractedDocument{TotalAmount: total("100"), TaxAmount: total("5")}, rate(0.1), "5.00", true},
		{"no rate", model.ExtractedDocument{TotalAmount: total("100")}, nil, "", false},
		{"rate above one", model.ExtractedDocument{TotalAmount: total("100")}, rate(8), "", false},
		{"zero rate", model.ExtractedDocument{TotalAmount: total("100")}, rate(0), "", false},
		{"negative total", model.ExtractedDocument{TotalAmount: total("-100")}, rate(0.1), "", false},
		{"no total", model.ExtractedDocument{}, rate(0.1), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := tt.doc
			ApplyTaxDefault(&doc, tt.rate)
			assert.Equal(t, tt.valid, doc.TaxAmount.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, doc.TaxAmount.Decimal.StringFixed(2))
			}
		})
	}
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		fileType, path string
		data           []byte
		want           string
	}{
		{"application/pdf", "a.bin", nil, "application/pdf"},
		{"PNG", "a", nil, "image/png"},
		{"", "scan.JPG", nil, "image/jpeg"},
		{"", "noext", []byte("%PDF-1.7\n"), "application/pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MimeType(tt.fileType, tt.path, tt.data), "%s %s", tt.fileType, tt.path)
	}
}

func TestContentHash_Stable(t *testing.T) {
	a := ContentHash([]byte("same"))
	assert.Equal(t, a, ContentHash([]byte("same")))
	assert.NotEqual(t, a, ContentHash([]byte("other")))
	assert.Len(t, a, 64)
}

func TestActorFrom(t *testing.T) {
	_, ok := ActorFrom(context.Background())
	assert.False(t, ok)

	a, ok := ActorFrom(WithActor(context.Background(), model.Actor{UserID: "u-1"}))
	assert.True(t, ok)
	assert.Equal(t, "u-1", a.UserID)
}

func TestNormalize_LocalePreferredNames(t *testing.T) {
	p := NewProcessor(Deps{})
	doc := &model.Document{DocumentType: model.DocumentTypeInvoice, Tenant: model.TenantContext{Locale: "zh-CN"}}

	ex := p.normalize(map[string]any{"vendor_name": "ABC Ltd (ABC有限公司)"}, doc)
	assert.Equal(t, "ABC有限公司", ex.VendorName)
	assert.Equal(t, model.DocumentTypeInvoice, ex.DocumentType)
}
