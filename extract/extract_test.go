package extract

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(t *testing.T) *PDFExtractor {
	t.Helper()
	e, err := NewPDFExtractor()
	require.NoError(t, err)
	return e
}

func TestExtractPlainTextPassthrough(t *testing.T) {
	e := newExtractor(t)

	text, images, err := e.Extract(context.Background(), []byte("  De raad besluit.  \n"))
	require.NoError(t, err)
	assert.Equal(t, "De raad besluit.", text)
	assert.Empty(t, images)
}

func TestExtractEmptyAndBinary(t *testing.T) {
	e := newExtractor(t)

	text, images, err := e.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, images)

	// Invalid UTF-8 that is not a PDF yields nothing.
	text, _, err = e.Extract(context.Background(), []byte{0xff, 0xfe, 0x00, 0x01})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractMalformedPDFDoesNotError(t *testing.T) {
	e := newExtractor(t)

	text, images, err := e.Extract(context.Background(), []byte("%PDF-1.7 truncated garbage"))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Empty(t, images)
}

// fakeJPEGStream builds a PDF image object fragment with a JPEG payload of
// the given size.
func fakeJPEGStream(size int) []byte {
	payload := make([]byte, size)
	payload[0] = 0xFF
	payload[1] = 0xD8
	for i := 2; i < size; i++ {
		payload[i] = byte(i % 251)
	}

	var buf bytes.Buffer
	buf.WriteString("12 0 obj\n<< /Subtype /Image /Filter /DCTDecode /Length ")
	buf.WriteString("X >>\nstream\n")
	buf.Write(payload)
	buf.WriteString("\nendstream\nendobj\n")
	return buf.Bytes()
}

func TestScanJPEGStreams(t *testing.T) {
	var doc bytes.Buffer
	doc.WriteString("%PDF-1.7\n")
	doc.Write(fakeJPEGStream(4096))
	doc.Write(fakeJPEGStream(512)) // too small, skipped
	doc.Write(fakeJPEGStream(8000))
	doc.WriteString("%%EOF\n")

	images := scanJPEGStreams(doc.Bytes())
	require.Len(t, images, 2)
	assert.Len(t, images[0], 4096)
	assert.Len(t, images[1], 8000)
	assert.Equal(t, []byte{0xFF, 0xD8}, images[0][:2])
}

func TestScanJPEGStreamsSkipsNonJPEGFilters(t *testing.T) {
	doc := []byte("%PDF-1.7\n" +
		"5 0 obj\n<< /Subtype /Image /Filter /FlateDecode >>\nstream\n" +
		"compressed bytes here\nendstream\nendobj\n")

	assert.Empty(t, scanJPEGStreams(doc))
}
