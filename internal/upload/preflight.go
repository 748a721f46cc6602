package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUnreadablePDF   = errors.New("unreadable PDF")
)

var supportedExts = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".xls":  true,
	".xlsx": true,
}

// Inspection is what pre-flight learned about a local file.
type Inspection struct {
	Path  string
	Name  string
	Size  int64
	Pages int
}

// Inspect checks that path exists, has a supported extension and, for PDFs,
// can be opened and has at least one page.
func Inspect(path string) (Inspection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Inspection{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Inspection{}, fmt.Errorf("%s is a directory", path)
	}
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	if !supportedExts[ext] {
		return Inspection{}, fmt.Errorf("%w: %q", ErrUnsupportedType, name)
	}
	out := Inspection{Path: path, Name: name, Size: info.Size()}
	if ext == ".pdf" {
		pages, err := countPages(path)
		if err != nil {
			return Inspection{}, fmt.Errorf("%w: %q: %v", ErrUnreadablePDF, name, err)
		}
		out.Pages = pages
	}
	return out, nil
}

func countPages(path string) (pages int, err error) {
	// The reader panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	file, reader, err := pdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	pages = reader.NumPage()
	if pages == 0 {
		return 0, errors.New("no pages")
	}
	return pages, nil
}
