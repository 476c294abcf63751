// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/poiesic/raadsync/syncer"
)

const (
	// minImageBytes filters out logos, separators and other page decoration.
	minImageBytes = 2048

	// maxImagesPerDocument caps pathological documents.
	maxImagesPerDocument = 20
)

// PDFExtractor pulls plain text and embedded JPEG images out of downloaded
// documents. Payloads that are not PDFs are treated as plain text when they
// decode as UTF-8, and skipped otherwise.
//
// PDFExtractor implements syncer.Extractor and is safe for concurrent use.
type PDFExtractor struct {
	logger *slog.Logger
}

var _ syncer.Extractor = (*PDFExtractor)(nil)

// Option configures a PDFExtractor.
type Option func(*PDFExtractor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *PDFExtractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewPDFExtractor creates an extractor.
func NewPDFExtractor(opts ...Option) (*PDFExtractor, error) {
	e := &PDFExtractor{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Extract returns the document's text and embedded images. A document
// without extractable text yields an empty string, not an error.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (string, []syncer.ExtractedImage, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, nil
	}

	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return plainText(data), nil, nil
	}

	text, err := e.pdfText(data)
	if err != nil {
		e.logger.Warn("pdf text extraction failed", "err", err)
		text = ""
	}

	var images []syncer.ExtractedImage
	for _, jpeg := range scanJPEGStreams(data) {
		images = append(images, syncer.ExtractedImage{Data: jpeg, Ext: ".jpg"})
	}
	return text, images, nil
}

// pdfText extracts plain text from a PDF. The parser panics on malformed
// input, so the call is fenced with a recover.
func (e *PDFExtractor) pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// plainText returns the payload as text when it is valid UTF-8, which covers
// the occasional .txt or data export attached to a meeting.
func plainText(data []byte) string {
	if !utf8.Valid(data) {
		return ""
	}
	return strings.TrimSpace(string(data))
}

var (
	dctDecodeMarker = []byte("/DCTDecode")
	streamMarker    = []byte("stream")
	endstreamMarker = []byte("endstream")
	jpegSOI         = []byte{0xFF, 0xD8}
)

// scanJPEGStreams pulls DCTDecode (baseline JPEG) image streams out of the
// raw PDF bytes. JPEG streams are stored verbatim in the file, so no object
// decoding is needed; other encodings (Flate, JPX) are skipped.
func scanJPEGStreams(data []byte) [][]byte {
	var images [][]byte
	rest := data
	for len(images) < maxImagesPerDocument {
		idx := bytes.Index(rest, dctDecodeMarker)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(dctDecodeMarker):]

		start := bytes.Index(rest, streamMarker)
		if start < 0 {
			break
		}
		body := rest[start+len(streamMarker):]
		body = bytes.TrimPrefix(body, []byte("\r\n"))
		body = bytes.TrimPrefix(body, []byte("\n"))

		end := bytes.Index(body, endstreamMarker)
		if end < 0 {
			break
		}
		stream := bytes.TrimRight(body[:end], "\r\n")
		rest = body[end+len(endstreamMarker):]

		if len(stream) < minImageBytes || !bytes.HasPrefix(stream, jpegSOI) {
			continue
		}
		img := make([]byte, len(stream))
		copy(img, stream)
		images = append(images, img)
	}
	return images
}
