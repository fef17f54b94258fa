package docling

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2md/internal/adapters/fsstore"
)

func buildPDF(t *testing.T, title string, utf8 bool) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	if title != "" {
		pdf.SetTitle(title, utf8)
	}
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(40, 10, "body text")

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func titleConverter(t *testing.T) *Converter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := fsstore.New(logger, t.TempDir())
	require.NoError(t, err)
	return NewConverter(logger, store, EngineConfig{URL: "http://unused"})
}

func TestTitle_FromMetadata(t *testing.T) {
	conv := titleConverter(t)

	title, ok := conv.Title(buildPDF(t, "Quarterly Report", false))
	require.True(t, ok)
	assert.Equal(t, "Quarterly Report", title)
}

func TestTitle_UTF16Metadata(t *testing.T) {
	conv := titleConverter(t)

	title, ok := conv.Title(buildPDF(t, "Jahresbericht Müller", true))
	require.True(t, ok)
	assert.Equal(t, "Jahresbericht Müller", title)
}

func TestTitle_Absent(t *testing.T) {
	conv := titleConverter(t)

	_, ok := conv.Title(buildPDF(t, "", false))
	assert.False(t, ok)

	_, ok = conv.Title([]byte("not a pdf at all"))
	assert.False(t, ok)
}

func TestTitle_EscapedParens(t *testing.T) {
	conv := titleConverter(t)

	raw := []byte("%PDF-1.4\n1 0 obj\n<< /Title (Annual \\(draft\\) report) >>\nendobj\n")
	title, ok := conv.Title(raw)
	require.True(t, ok)
	assert.Equal(t, "Annual (draft) report", title)
}

func TestTitle_HexString(t *testing.T) {
	conv := titleConverter(t)

	// "Hi" as UTF-16BE with BOM
	raw := []byte("%PDF-1.4\n<< /Title <FEFF00480069> >>\n")
	title, ok := conv.Title(raw)
	require.True(t, ok)
	assert.Equal(t, "Hi", title)
}

func TestTitle_WhitespaceOnlyIgnored(t *testing.T) {
	conv := titleConverter(t)

	raw := []byte("%PDF-1.4\n<< /Title (   ) >>\n")
	_, ok := conv.Title(raw)
	assert.False(t, ok)
}
