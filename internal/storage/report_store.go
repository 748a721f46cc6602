package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ReportStore keeps downloaded reports on disk, one directory per document.
type ReportStore struct {
	basePath string
}

// StoredReport is one file in the report store.
type StoredReport struct {
	DocID    string
	FileName string
	Path     string
	Size     int64
}

// NewReportStore creates the base directory if missing.
func NewReportStore(basePath string) (*ReportStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("report dir is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &ReportStore{basePath: basePath}, nil
}

// Create opens a new report file for writing, replacing any earlier copy.
func (s *ReportStore) Create(docID, filename string) (*os.File, string, error) {
	targetDir := filepath.Join(s.basePath, safeName(docID))
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create report doc dir: %w", err)
	}
	target := filepath.Join(targetDir, safeName(filename))
	out, err := os.Create(target)
	if err != nil {
		return nil, "", fmt.Errorf("create report file: %w", err)
	}
	return out, target, nil
}

// Save writes r as docID's report and returns the written path.
func (s *ReportStore) Save(docID, filename string, r io.Reader) (string, error) {
	out, target, err := s.Create(docID, filename)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write report file: %w", err)
	}
	return target, nil
}

// List returns every stored report ordered by document then file name.
func (s *ReportStore) List() ([]StoredReport, error) {
	docs, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("read report dir: %w", err)
	}
	var out []StoredReport
	for _, d := range docs {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.basePath, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("read report doc dir: %w", err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			out = append(out, StoredReport{
				DocID:    d.Name(),
				FileName: f.Name(),
				Path:     filepath.Join(s.basePath, d.Name(), f.Name()),
				Size:     info.Size(),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocID != out[j].DocID {
			return out[i].DocID < out[j].DocID
		}
		return out[i].FileName < out[j].FileName
	})
	return out, nil
}

// Delete removes all reports for a document.
func (s *ReportStore) Delete(docID string) error {
	targetDir := filepath.Join(s.basePath, safeName(docID))
	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(targetDir)
}

func safeName(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "report"
	}
	return name
}
