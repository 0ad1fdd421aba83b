package extractor

import (
	"bytes"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/xuri/excelize/v2"

	"github.com/bzrportal/knowledge/internal/core"
	"github.com/bzrportal/knowledge/internal/models"
)

// UnsupportedPrefix marks the sentinel text returned for formats the
// extractor does not handle. Callers treat the pattern as a soft failure
// instead of an error.
const UnsupportedPrefix = "[Unsupported format: "

type family int

const (
	familyUnknown family = iota
	familyPDF
	familyWord
	familyExcel
	familyText
	familyImage
)

var _ core.DocumentExtractor = (*Extractor)(nil)

// Extractor converts raw file bytes into plain text plus metadata.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract dispatches on content type first and falls back to the filename
// extension when the type is absent or generic. Unsupported formats return
// sentinel text, not an error; corrupt files in a supported family return
// core.ErrExtractionFailed; images return core.ErrOCRNotImplemented.
func (e *Extractor) Extract(data []byte, contentType, filename string) (*models.DocumentContent, error) {
	fam := detectFamily(contentType, filename)

	meta := models.ContentMetadata{
		Filename:       filename,
		FileType:       resolvedType(contentType, fam),
		ExtractionDate: time.Now().UTC(),
		FileSizeBytes:  int64(len(data)),
	}

	var (
		text string
		err  error
	)
	switch fam {
	case familyPDF:
		text, err = convert(data, "application/pdf")
	case familyWord:
		text, err = convert(data, meta.FileType)
	case familyExcel:
		text, err = extractSheets(data)
	case familyText:
		text = string(data)
	case familyImage:
		return nil, fmt.Errorf("%w: %s", core.ErrOCRNotImplemented, meta.FileType)
	default:
		kind := contentType
		if kind == "" {
			kind = filepath.Ext(filename)
		}
		if kind == "" {
			kind = "unknown"
		}
		text = UnsupportedPrefix + kind + "]"
	}
	if err != nil {
		return nil, err
	}

	return &models.DocumentContent{Text: text, Metadata: meta}, nil
}

// IsUnsupported reports whether extracted text is the unsupported-format
// sentinel rather than real content.
func IsUnsupported(text string) bool {
	return strings.HasPrefix(text, UnsupportedPrefix)
}

func convert(data []byte, mimeType string) (string, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return "", fmt.Errorf("%w: docconv %s: %v", core.ErrExtractionFailed, mimeType, err)
	}
	return res.Body, nil
}

// extractSheets flattens a workbook sheet by sheet: one "[Sheet: name]"
// header line per sheet, cells joined with " | ", rows joined with newlines.
func extractSheets(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: open workbook: %v", core.ErrExtractionFailed, err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			log.Printf("extractor: skipping sheet %q: %v", sheet, err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[Sheet: " + sheet + "]\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// detectFamily sniffs the MIME type by substring match, then falls back to
// the filename extension when the type is missing or a generic octet-stream.
func detectFamily(contentType, filename string) family {
	ct := strings.ToLower(contentType)
	if ct != "" && ct != "application/octet-stream" {
		switch {
		case strings.Contains(ct, "pdf"):
			return familyPDF
		case strings.Contains(ct, "wordprocessingml"), strings.Contains(ct, "msword"):
			return familyWord
		case strings.Contains(ct, "spreadsheetml"), strings.Contains(ct, "ms-excel"):
			return familyExcel
		case strings.HasPrefix(ct, "image/"):
			return familyImage
		case strings.HasPrefix(ct, "text/"), strings.Contains(ct, "json"):
			return familyText
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return familyPDF
	case ".doc", ".docx":
		return familyWord
	case ".xls", ".xlsx":
		return familyExcel
	case ".txt", ".md", ".csv", ".json", ".log":
		return familyText
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".tiff":
		return familyImage
	}
	return familyUnknown
}

// resolvedType echoes the caller-provided content type, or supplies the
// family's canonical MIME when the caller gave none.
func resolvedType(contentType string, fam family) string {
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch fam {
	case familyPDF:
		return "application/pdf"
	case familyWord:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case familyExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case familyText:
		return "text/plain"
	case familyImage:
		return "image/unknown"
	}
	return contentType
}
