package service

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/fred1433/CounselAI/model"
)

// Supported template media types.
const (
	MediaTypePDF      = "application/pdf"
	MediaTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"
)

// TextExtractor turns an uploaded template into plain text.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Supported reports whether mediaType is in the allow-list.
func Supported(mediaType string) bool {
	switch baseMediaType(mediaType) {
	case MediaTypePDF, MediaTypeDOCX, MediaTypeText, MediaTypeMarkdown:
		return true
	}
	return false
}

func baseMediaType(mediaType string) string {
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Extract returns the text of file. Unsupported media types fail with
// *UnsupportedMediaError; parser failures with *ExtractionError.
func (e *TextExtractor) Extract(file *model.UploadedTemplate) (text string, err error) {
	mediaType := baseMediaType(file.MediaType)
	if !Supported(mediaType) {
		return "", &UnsupportedMediaError{MediaType: file.MediaType}
	}

	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Filename: file.Filename, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	switch mediaType {
	case MediaTypePDF:
		text, err = extractPDF(file.Data)
	case MediaTypeDOCX:
		text, err = extractDOCX(file.Data)
	default:
		text = normalizeText(string(file.Data))
	}
	if err != nil {
		return "", &ExtractionError{Filename: file.Filename, Err: err}
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely
			continue
		}
		if text = normalizeText(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", errors.New("no text extracted from PDF")
	}
	return strings.Join(pages, "\n\n"), nil
}

// maxDOCXBodyBytes caps the decompressed size of word/document.xml.
const maxDOCXBodyBytes = 32 << 20

var errDOCXTooLarge = fmt.Errorf("docx body exceeds %d MiB uncompressed", maxDOCXBodyBytes>>20)

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		if f.UncompressedSize64 > maxDOCXBodyBytes {
			return "", errDOCXTooLarge
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("read docx body: %w", err)
		}
		defer rc.Close()

		// The header size can lie, so the stream itself is bounded too.
		lr := &io.LimitedReader{R: rc, N: maxDOCXBodyBytes + 1}
		text, err := docxText(lr)
		if lr.N <= 0 {
			return "", errDOCXTooLarge
		}
		return text, err
	}
	return "", errors.New("word/document.xml not found in docx")
}

// docxText walks the WordprocessingML body: w:t runs carry text, w:p ends a
// paragraph, w:tab and w:br are a tab and a line break.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return normalizeText(sb.String()), nil
}

// normalizeText keeps line structure but drops BOMs, NULs, invalid UTF-8 and
// trailing spaces.
func normalizeText(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
