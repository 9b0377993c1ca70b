package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FileExtractService pulls plain text out of uploaded course material so
// question generation has something to work from.
type FileExtractService struct{}

func NewFileExtractService() *FileExtractService {
	return &FileExtractService{}
}

func (s *FileExtractService) ExtractTextFromPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt":
		return s.extractTXT(path)
	case ".pdf":
		return s.extractPDF(path)
	case ".docx":
		return s.extractDOCX(path)
	default:
		return "", fmt.Errorf("unsupported file type for text extraction: %s", ext)
	}
}

func (s *FileExtractService) extractTXT(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *FileExtractService) extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("PDF contained no extractable text")
	}
	return out, nil
}

var docxTagRegex = regexp.MustCompile(`<[^>]+>`)

// extractDOCX reads word/document.xml from the docx zip and strips markup.
func (s *FileExtractService) extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, rc); err != nil {
			return "", err
		}

		xmlContent := buf.String()
		// Paragraph breaks before stripping tags
		xmlContent = strings.ReplaceAll(xmlContent, "</w:p>", "\n")
		text := docxTagRegex.ReplaceAllString(xmlContent, "")
		text = strings.TrimSpace(text)
		if text == "" {
			return "", fmt.Errorf("docx contained no extractable text")
		}
		return text, nil
	}

	return "", fmt.Errorf("docx missing word/document.xml")
}
