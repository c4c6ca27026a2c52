package mimetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name     string
		declared string
		fileName string
		want     string
	}{
		{"empty declared uses extension", "", "scan.jpg", "image/jpeg"},
		{"garbled list uses extension", "text/json,application/pdf", "doc.pdf", "application/pdf"},
		{"json artifact uses extension", "application/json", "deed.PNG", "image/png"},
		{"well formed kept", "application/pdf", "x.pdf", "application/pdf"},
		{"well formed wins over extension", "image/png", "x.pdf", "image/png"},
		{"parameters stripped", "text/plain; charset=utf-8", "notes", "text/plain"},
		{"bare extension mapped", "DOCX", "", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"list without known extension keeps first", "image/heic,image/jpeg", "IMG_0001", "image/heic"},
		{"unknown bare value falls back to file name", "binary", "photo.webp", "image/webp"},
		{"name without dot is an extension", "", "pdf", "application/pdf"},
		{"json with unknown name", "json", "data.bin", OctetStream},
		{"nothing known", "", "", OctetStream},
		{"blank declared", "   ", "", OctetStream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.declared, tc.fileName))
		})
	}
}

func TestNormalizeExtensionTable(t *testing.T) {
	for ext, want := range byExtension {
		for _, declared := range []string{"", "a/b,c/d", "text/json"} {
			assert.Equal(t, want, Normalize(declared, "file."+ext), "%s %q", ext, declared)
		}
	}
}

func TestNormalizeNeverEmpty(t *testing.T) {
	inputs := []string{"", ",", ";", "/", "json", "a/json", " ; ", ".", "..", "x.", "application/pdf"}
	for _, d := range inputs {
		for _, n := range inputs {
			assert.NotEmpty(t, Normalize(d, n), "%q %q", d, n)
		}
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("application/pdf"))
	assert.True(t, IsPDF(" Application/PDF "))
	assert.False(t, IsPDF("image/png"))
}
