package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailvault/mailvault/config"
	"github.com/mailvault/mailvault/internal/enum"
	er "github.com/mailvault/mailvault/internal/errors"
	"github.com/mailvault/mailvault/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func getRegistry() *Registry {
	cfg := &config.PipelineConfig{
		OCREnabled: false,
		OCRBinary:  "tesseract",
	}
	return NewRegistry(cfg, getLogger())
}

func buildZip(t *testing.T, parts map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range parts {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRegistry_Resolve(t *testing.T) {
	reg := getRegistry()

	tests := []struct {
		name        string
		contentType string
		filename    string
		family      enum.ContentFamily
		supported   bool
	}{
		{"plain text", "text/plain", "notes.txt", enum.ContentFamilyPlain, true},
		{"plain with charset", "text/plain; charset=utf-8", "", enum.ContentFamilyPlain, true},
		{"csv", "text/csv", "data.csv", enum.ContentFamilyPlain, true},
		{"json", "application/json", "", enum.ContentFamilyPlain, true},
		{"html", "text/html", "page.html", enum.ContentFamilyPlain, true},
		{"pdf", "application/pdf", "report.pdf", enum.ContentFamilyPDF, true},
		{"docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "a.docx", enum.ContentFamilyOffice, true},
		{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "a.xlsx", enum.ContentFamilyOffice, true},
		{"pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation", "a.pptx", enum.ContentFamilyOffice, true},
		{"png", "image/png", "scan.png", enum.ContentFamilyImage, true},
		{"zip archive", "application/zip", "archive.zip", enum.ContentFamilyUnsupported, false},
		{"executable", "application/x-msdownload", "setup.exe", enum.ContentFamilyUnsupported, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor, family := reg.Resolve(tt.contentType, tt.filename)
			assert.Equal(t, tt.family, family)
			if tt.supported {
				assert.NotNil(t, extractor)
			} else {
				assert.Nil(t, extractor)
			}
		})
	}
}

func TestRegistry_Resolve_ExtensionFallback(t *testing.T) {
	reg := getRegistry()

	// A generic content type defers to the filename extension
	extractor, family := reg.Resolve("application/octet-stream", "report.pdf")
	assert.NotNil(t, extractor)
	assert.Equal(t, enum.ContentFamilyPDF, family)

	extractor, family = reg.Resolve("", "notes.txt")
	assert.NotNil(t, extractor)
	assert.Equal(t, enum.ContentFamilyPlain, family)

	// A specific content type is trusted even when the extension disagrees
	extractor, family = reg.Resolve("application/zip", "report.pdf")
	assert.Nil(t, extractor)
	assert.Equal(t, enum.ContentFamilyUnsupported, family)

	// Unknown extension with a generic type stays unsupported
	extractor, family = reg.Resolve("application/octet-stream", "data.bin")
	assert.Nil(t, extractor)
	assert.Equal(t, enum.ContentFamilyUnsupported, family)
}

func TestPlainExtractor(t *testing.T) {
	e := NewPlainExtractor()
	payload := []byte("  hello world\nsecond line  \n")

	text, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", text)
}

func TestHTMLExtractor(t *testing.T) {
	e := NewHTMLExtractor()
	payload := []byte(`<html><head><style>body { color: red; }</style></head>
<body><script>alert("x")</script><h1>Quarterly Report</h1><p>Revenue grew.</p></body></html>`)

	text, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.NoError(t, err)
	assert.Contains(t, text, "Quarterly Report")
	assert.Contains(t, text, "Revenue grew.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")
}

func TestOfficeExtractor_Docx(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"[Content_Types].xml": `<Types/>`,
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Hello</w:t></w:r><w:r><w:t xml:space="preserve"> World</w:t></w:r></w:p>
<w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
</w:body></w:document>`,
	})

	e := NewOfficeExtractor()
	text, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.NoError(t, err)
	assert.Equal(t, "Hello World\nSecond paragraph", text)
}

func TestOfficeExtractor_Xlsx(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"[Content_Types].xml":      `<Types/>`,
		"xl/worksheets/sheet1.xml": `<worksheet/>`,
		"xl/sharedStrings.xml": `<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="2" uniqueCount="2">
<si><t>Revenue</t></si>
<si><t>Q1 totals</t></si>
</sst>`,
	})

	e := NewOfficeExtractor()
	text, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.NoError(t, err)
	assert.Equal(t, "Revenue\nQ1 totals", text)
}

func TestOfficeExtractor_XlsxWithoutStrings(t *testing.T) {
	// A workbook with only numeric cells has no shared string table
	payload := buildZip(t, map[string]string{
		"xl/worksheets/sheet1.xml": `<worksheet/>`,
	})

	e := NewOfficeExtractor()
	text, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestOfficeExtractor_Pptx(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"[Content_Types].xml": `<Types/>`,
		"ppt/slides/slide1.xml": `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
<p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>Slide one title</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`,
		"ppt/slides/slide2.xml": `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
<p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>Slide two title</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`,
	})

	e := NewOfficeExtractor()
	text, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.NoError(t, err)
	assert.Contains(t, text, "Slide one title")
	assert.Contains(t, text, "Slide two title")
}

func TestOfficeExtractor_UnrecognizedLayout(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"random.txt": "not an office document",
	})

	e := NewOfficeExtractor()
	_, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.Error(t, err)
}

func TestOfficeExtractor_NotAZip(t *testing.T) {
	payload := []byte("plain bytes, no zip header")

	e := NewOfficeExtractor()
	_, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.Error(t, err)
}

func TestPDFExtractor_MalformedInput(t *testing.T) {
	e := NewPDFExtractor()
	payload := []byte("%PDF-1.7 truncated garbage that is not a real document")

	// Must report an error, never panic
	assert.NotPanics(t, func() {
		_, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))
		assert.Error(t, err)
	})
}

func TestOCRExtractor_Disabled(t *testing.T) {
	e := NewOCRExtractor("tesseract", false, getLogger())
	payload := []byte{0x89, 0x50, 0x4e, 0x47}

	_, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.ErrorIs(t, err, er.ErrUnsupportedType)
}

func TestOCRExtractor_MissingBinary(t *testing.T) {
	e := NewOCRExtractor("definitely-not-a-real-binary-xyz", true, getLogger())
	payload := []byte{0x89, 0x50, 0x4e, 0x47}

	_, err := e.Extract(context.Background(), bytes.NewReader(payload), int64(len(payload)))

	assert.ErrorIs(t, err, er.ErrUnsupportedType)
}
