package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

type fakeAPI struct {
	results map[string]domain.UploadResult
	fail    map[string]error
	seen    []string
	project string
}

func (f *fakeAPI) UploadRFP(ctx context.Context, project string, file apiclient.UploadFile) (domain.UploadResult, error) {
	f.seen = append(f.seen, file.Name)
	f.project = project
	if _, err := io.ReadAll(file.Body); err != nil {
		return domain.UploadResult{}, err
	}
	if err := f.fail[file.Name]; err != nil {
		return domain.UploadResult{}, err
	}
	res := f.results[file.Name]
	res.Filename = file.Name
	return res, nil
}

type memArchive struct {
	objects map[string][]byte
	err     error
}

func (m *memArchive) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *memArchive) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://archive.local/" + key, nil
}

func (m *memArchive) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestUploadBatchMessages(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "b.docx", "beta")
	api := &fakeAPI{results: map[string]domain.UploadResult{
		"a.txt":  {Duplicate: true},
		"b.docx": {Summary: "sum", Questions: []string{"Q1?", "Q2?"}, DocID: "d9"},
	}}
	archive := &memArchive{objects: map[string][]byte{}}

	batch, err := NewUploader(api, archive).UploadBatch(context.Background(), " Acme ", []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, `"a.txt" already exists. "b.docx" uploaded successfully! `, batch.Message)
	assert.True(t, batch.Duplicates)
	assert.Equal(t, []string{"Q1?", "Q2?"}, batch.Questions)
	assert.Equal(t, "sum", batch.Summary)
	assert.Equal(t, "d9", batch.DocID)
	assert.Equal(t, "Acme", api.project)
	assert.Equal(t, []byte("beta"), archive.objects["uploads/Acme/b.docx"])
	assert.NotContains(t, archive.objects, "uploads/Acme/a.txt")
}

func TestUploadBatchFailureAborts(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "b.txt", "beta")
	api := &fakeAPI{fail: map[string]error{"a.txt": &apiclient.APIError{Status: 500, Message: "extractor crashed"}}}

	batch, err := NewUploader(api, nil).UploadBatch(context.Background(), "Acme", []string{a, b})
	require.Error(t, err)
	assert.Equal(t, "Upload failed: extractor crashed", batch.Message)
	assert.Equal(t, []string{"a.txt"}, api.seen)
}

func TestUploadBatchArchiveFailureIsIgnored(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "alpha")
	archive := &memArchive{objects: map[string][]byte{}, err: errors.New("bucket gone")}

	batch, err := NewUploader(&fakeAPI{}, archive).UploadBatch(context.Background(), "Acme", []string{a})
	require.NoError(t, err)
	assert.Equal(t, `"a.txt" uploaded successfully! `, batch.Message)
}

func TestUploadBatchGuards(t *testing.T) {
	u := NewUploader(&fakeAPI{}, nil)
	batch, err := u.UploadBatch(context.Background(), "  ", []string{"x.pdf"})
	assert.ErrorIs(t, err, ErrProjectRequired)
	assert.Equal(t, "Project name is required.", batch.Message)

	_, err = u.UploadBatch(context.Background(), "Acme", nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestPreflightRejectsBeforeAnyRequest(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.txt", "alpha")
	exe := writeFile(t, dir, "tool.exe", "MZ")
	fakePDF := writeFile(t, dir, "scan.pdf", "not really a pdf")
	api := &fakeAPI{}
	u := NewUploader(api, nil)

	_, err := u.UploadBatch(context.Background(), "Acme", []string{good, exe})
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = u.UploadBatch(context.Background(), "Acme", []string{good, fakePDF})
	assert.ErrorIs(t, err, ErrUnreadablePDF)
	assert.Empty(t, api.seen)
}

func TestInspectTextFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "Notes.TXT", "hello")
	info, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "Notes.TXT", info.Name)
	assert.Equal(t, int64(5), info.Size)
	assert.Zero(t, info.Pages)
}
