package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"rfpdesk/internal/storage"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

const (
	msgProjectRequired = "Project name is required."
	msgNoFiles         = "Please select at least one file."
)

var (
	ErrProjectRequired = errors.New("upload: project name is required")
	ErrNoFiles         = errors.New("upload: no files selected")
)

// API is the upload endpoint the batch drives.
type API interface {
	UploadRFP(ctx context.Context, projectName string, file apiclient.UploadFile) (domain.UploadResult, error)
}

// Batch is the outcome of UploadBatch. Message accumulates one sentence per
// file. Summary and Questions come from the last file when it was accepted.
type Batch struct {
	Message    string
	Results    []domain.UploadResult
	Files      []Inspection
	Summary    string
	Questions  []string
	DocID      string
	Duplicates bool
}

type Uploader struct {
	api     API
	archive storage.Archive
}

// NewUploader builds an uploader. archive may be nil.
func NewUploader(api API, archive storage.Archive) *Uploader {
	return &Uploader{api: api, archive: archive}
}

// UploadBatch pre-flights every file, then uploads them one by one. A
// duplicate is reported and skipped; any other failure aborts the batch.
func (u *Uploader) UploadBatch(ctx context.Context, project string, paths []string) (Batch, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return Batch{Message: msgProjectRequired}, ErrProjectRequired
	}
	if len(paths) == 0 {
		return Batch{Message: msgNoFiles}, ErrNoFiles
	}

	files := make([]Inspection, 0, len(paths))
	for _, p := range paths {
		info, err := Inspect(p)
		if err != nil {
			return Batch{Message: "Upload failed: " + err.Error()}, err
		}
		files = append(files, info)
	}

	logger := util.LoggerFromContext(ctx)
	var batch Batch
	batch.Files = files
	var msg strings.Builder
	for i, f := range files {
		res, err := u.uploadOne(ctx, project, f)
		if err != nil {
			logger.Error("upload failed", "file", f.Name, "project", project, "err", err)
			batch.Message = "Upload failed: " + apiclient.UserMessage(err)
			return batch, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		batch.Results = append(batch.Results, res)
		if res.Duplicate {
			batch.Duplicates = true
			fmt.Fprintf(&msg, "\"%s\" already exists. ", f.Name)
			continue
		}
		fmt.Fprintf(&msg, "\"%s\" uploaded successfully! ", f.Name)
		logger.Info("rfp uploaded", "file", f.Name, "project", project, "doc_id", res.DocID, "questions", len(res.Questions))
		u.mirror(ctx, project, f)
		if i == len(files)-1 {
			batch.Summary = res.Summary
			batch.Questions = res.Questions
			batch.DocID = res.DocID
		}
	}
	batch.Message = msg.String()
	return batch, nil
}

func (u *Uploader) uploadOne(ctx context.Context, project string, f Inspection) (domain.UploadResult, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer fh.Close()
	return u.api.UploadRFP(ctx, project, apiclient.UploadFile{Name: f.Name, Body: fh})
}

// mirror copies an accepted file to the archive. Failures are logged only.
func (u *Uploader) mirror(ctx context.Context, project string, f Inspection) {
	if u.archive == nil {
		return
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("archive open failed", "file", f.Name, "err", err)
		return
	}
	defer fh.Close()
	key := storage.ArchiveKey("uploads", project, f.Name)
	if err := u.archive.Put(ctx, key, fh, f.Size, storage.ContentType(f.Name)); err != nil {
		util.LoggerFromContext(ctx).Warn("archive upload failed", "key", key, "err", err)
	}
}
