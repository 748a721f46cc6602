package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"rfpdesk/internal/storage"
	"rfpdesk/internal/upload"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

const generalSection = "General"

var sectionNumberPattern = regexp.MustCompile(`^(\d+\.?\d*\.?\d*)`)
var mainSectionPattern = regexp.MustCompile(`^(\d+\.?\d*)`)

// Documents lists uploaded documents, optionally only one category.
func (a *App) Documents(ctx context.Context, category domain.Category) ([]domain.Document, error) {
	docs, err := a.api.ListDocuments(ctx)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("list documents: %w", err))
	}
	if category == "" {
		return docs, nil
	}
	out := docs[:0:0]
	for _, d := range docs {
		if strings.EqualFold(string(d.Category), string(category)) {
			out = append(out, d)
		}
	}
	return out, nil
}

// DeleteDocument removes the document on the backend and everything kept
// locally for it.
func (a *App) DeleteDocument(ctx context.Context, docID string) error {
	if err := a.api.DeleteDocument(ctx, docID); err != nil {
		return a.authFailure(ctx, fmt.Errorf("delete document %s: %w", docID, err))
	}
	logger := util.LoggerFromContext(ctx)
	if err := a.cache.ForgetDocument(docID); err != nil {
		logger.Warn("forget cached document failed", "doc_id", docID, "err", err)
	}
	if err := a.reports.Delete(docID); err != nil {
		logger.Warn("delete local reports failed", "doc_id", docID, "err", err)
	}
	logger.Info("document deleted", "doc_id", docID)
	return nil
}

func (a *App) Details(ctx context.Context, docID, status string) (domain.DocumentDetails, error) {
	details, err := a.api.DocumentDetails(ctx, docID, status)
	if err != nil {
		return domain.DocumentDetails{}, a.authFailure(ctx, fmt.Errorf("document details %s: %w", docID, err))
	}
	return details, nil
}

// ScorecardQuestion is one question with its completion state.
type ScorecardQuestion struct {
	Index      int
	Number     string
	Question   domain.Question
	Status     domain.CompletionState
	AssignedTo string
	Percentage int
}

// ScorecardSection groups questions by the leading number of their text.
type ScorecardSection struct {
	Key        string
	Title      string
	Questions  []ScorecardQuestion
	Total      int
	Completed  int
	InProgress int
}

// Scorecard joins the document's questions with their completion status and
// groups them by main section number in order of first appearance.
func (a *App) Scorecard(ctx context.Context, docID string) ([]ScorecardSection, error) {
	details, err := a.Details(ctx, docID, "all")
	if err != nil {
		return nil, err
	}
	entries, err := a.api.CompletionStatus(ctx, docID)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("completion status %s: %w", docID, err))
	}
	return buildScorecard(details.Questions, entries), nil
}

func buildScorecard(questions []domain.Question, entries []domain.CompletionEntry) []ScorecardSection {
	byID := make(map[string]domain.CompletionEntry, len(entries))
	for _, e := range entries {
		byID[e.QuestionID] = e
	}
	var out []ScorecardSection
	index := make(map[string]int)
	for i, q := range questions {
		number := generalSection
		if m := sectionNumberPattern.FindStringSubmatch(q.Text); m != nil {
			number = m[1]
		}
		main := generalSection
		if m := mainSectionPattern.FindStringSubmatch(number); m != nil {
			main = m[1]
		}
		pos, ok := index[main]
		if !ok {
			pos = len(out)
			index[main] = pos
			out = append(out, ScorecardSection{Key: main, Title: "Section " + main})
		}
		entry := byID[q.ID]
		status := entry.Status
		if status == "" {
			status = domain.CompletionNotStarted
		}
		sec := &out[pos]
		sec.Questions = append(sec.Questions, ScorecardQuestion{
			Index:      i + 1,
			Number:     number,
			Question:   q,
			Status:     status,
			AssignedTo: entry.AssignedTo,
			Percentage: entry.Percentage,
		})
		sec.Total++
		switch status {
		case domain.CompletionDone:
			sec.Completed++
		case domain.CompletionInProgress:
			sec.InProgress++
		}
	}
	return out
}

// Analyze runs the AI review for a document and caches the result.
func (a *App) Analyze(ctx context.Context, docID string) (json.RawMessage, error) {
	result, err := a.api.AnalyzeAnswers(ctx, docID)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("analyze %s: %w", docID, err))
	}
	if err := a.cache.SetAIAnalysis(docID, result); err != nil {
		util.LoggerFromContext(ctx).Warn("cache analysis failed", "doc_id", docID, "err", err)
	}
	return result, nil
}

// Analysis returns the cached AI review of a document.
func (a *App) Analysis(docID string) (json.RawMessage, bool, error) {
	return a.cache.AIAnalysis(docID)
}

func (a *App) AnalyzeQuestion(ctx context.Context, docID, questionID string) (json.RawMessage, error) {
	result, err := a.api.AnalyzeQuestion(ctx, docID, questionID)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("analyze question %s: %w", questionID, err))
	}
	return result, nil
}

// Upload sends a batch of RFP files for extraction.
func (a *App) Upload(ctx context.Context, project string, paths []string) (upload.Batch, error) {
	batch, err := a.uploader.UploadBatch(ctx, project, paths)
	if err != nil {
		return batch, a.authFailure(ctx, err)
	}
	return batch, nil
}

// UploadHistory sends a past RFP for text extraction.
func (a *App) UploadHistory(ctx context.Context, path string) (domain.HistoryUpload, error) {
	info, err := upload.Inspect(path)
	if err != nil {
		return domain.HistoryUpload{}, err
	}
	f, err := os.Open(info.Path)
	if err != nil {
		return domain.HistoryUpload{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	res, err := a.api.UploadHistory(ctx, apiclient.UploadFile{Name: info.Name, Body: f})
	if err != nil {
		return domain.HistoryUpload{}, a.authFailure(ctx, fmt.Errorf("upload history: %w", err))
	}
	return res, nil
}

// UploadLibrary adds reference documents to a knowledge category.
func (a *App) UploadLibrary(ctx context.Context, category domain.Category, project string, paths []string) error {
	files := make([]apiclient.UploadFile, 0, len(paths))
	for _, p := range paths {
		info, err := upload.Inspect(p)
		if err != nil {
			return err
		}
		f, err := os.Open(info.Path)
		if err != nil {
			return fmt.Errorf("open %s: %w", p, err)
		}
		defer f.Close()
		files = append(files, apiclient.UploadFile{Name: info.Name, Body: f})
	}
	if err := a.api.UploadLibrary(ctx, category, project, files); err != nil {
		return a.authFailure(ctx, fmt.Errorf("upload library: %w", err))
	}
	return nil
}

// GenerateReport asks the backend to build the answer document for docID.
func (a *App) GenerateReport(ctx context.Context, docID string) (apiclient.GeneratedReport, error) {
	rep, err := a.api.GenerateReport(ctx, docID)
	if err != nil {
		return apiclient.GeneratedReport{}, a.authFailure(ctx, fmt.Errorf("generate report %s: %w", docID, err))
	}
	return rep, nil
}

func (a *App) Reports(ctx context.Context) ([]domain.ReportDoc, error) {
	docs, err := a.api.ListReports(ctx)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("list reports: %w", err))
	}
	return docs, nil
}

// DownloadReport saves a generated report under docID in the report store
// and mirrors it to the archive when one is configured.
func (a *App) DownloadReport(ctx context.Context, docID string, doc domain.ReportDoc) (storage.StoredReport, error) {
	if doc.DownloadURL == "" {
		return storage.StoredReport{}, errors.New("report has no download url")
	}
	name := doc.FileName
	if name == "" {
		name = filepath.Base(doc.DownloadURL)
	}
	out, path, err := a.reports.Create(docID, name)
	if err != nil {
		return storage.StoredReport{}, err
	}
	n, err := a.api.Download(ctx, doc.DownloadURL, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return storage.StoredReport{}, a.authFailure(ctx, fmt.Errorf("download report %s: %w", name, err))
	}
	stored := storage.StoredReport{DocID: docID, FileName: filepath.Base(path), Path: path, Size: n}
	a.mirrorReport(ctx, stored)
	util.LoggerFromContext(ctx).Info("report downloaded", "doc_id", docID, "path", path, "bytes", n)
	return stored, nil
}

func (a *App) mirrorReport(ctx context.Context, rep storage.StoredReport) {
	if a.archive == nil {
		return
	}
	f, err := os.Open(rep.Path)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("archive open failed", "path", rep.Path, "err", err)
		return
	}
	defer f.Close()
	key := storage.ArchiveKey("reports", rep.DocID, rep.FileName)
	if err := a.archive.Put(ctx, key, f, rep.Size, storage.ContentType(rep.FileName)); err != nil {
		util.LoggerFromContext(ctx).Warn("archive report failed", "key", key, "err", err)
	}
}

// LocalReports lists reports already downloaded.
func (a *App) LocalReports() ([]storage.StoredReport, error) {
	return a.reports.List()
}
