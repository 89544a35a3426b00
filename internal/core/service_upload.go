package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/factflow/internal/logging"
	"github.com/JonMunkholm/factflow/internal/model"
	"github.com/JonMunkholm/factflow/internal/structure"
)

var (
	// ErrNoFile is returned when an upload carries no file.
	ErrNoFile = errors.New("no file provided")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("empty file")
)

// RegisterUpload stores the content of r under the upload directory and
// records it as a new upload.
func (s *Service) RegisterUpload(ctx context.Context, fileName string, r io.Reader) (*model.UploadJob, error) {
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if r == nil || fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		return nil, ErrNoFile
	}

	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return nil, model.Infra("create upload dir", err)
	}

	id := uuid.New()
	path := filepath.Join(s.opts.UploadDir, id.String()+filepath.Ext(fileName))

	f, err := os.Create(path)
	if err != nil {
		return nil, model.Infra("create upload file", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.opts.MaxFileSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		err = model.Infra("write upload file", err)
	case closeErr != nil:
		err = model.Infra("close upload file", closeErr)
	case n > s.opts.MaxFileSize:
		err = fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.opts.MaxFileSize)
	case n == 0:
		err = ErrEmptyFile
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	u := &model.UploadJob{
		ID:        id,
		FileName:  fileName,
		Path:      path,
		Size:      n,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUpload(ctx, u); err != nil {
		os.Remove(path)
		return nil, model.Infra("record upload", err)
	}

	logging.WithFields(ctx, "upload_id", id, "file", fileName).Info("upload registered", "bytes", n)
	return u, nil
}

// RegisterFile records an existing file as an upload without copying it.
func (s *Service) RegisterFile(ctx context.Context, path string) (*model.UploadJob, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file %s: %w", path, model.ErrNotFound)
		}
		return nil, model.Infra("stat file", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNoFile, path)
	}
	if info.Size() == 0 {
		return nil, ErrEmptyFile
	}

	u := &model.UploadJob{
		ID:        uuid.New(),
		FileName:  filepath.Base(path),
		Path:      path,
		Size:      info.Size(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUpload(ctx, u); err != nil {
		return nil, model.Infra("record upload", err)
	}
	return u, nil
}

// GetUpload returns a registered upload.
func (s *Service) GetUpload(ctx context.Context, uploadID uuid.UUID) (*model.UploadJob, error) {
	return s.upload(ctx, uploadID)
}

// AnalyzeStructure detects the structure of an upload. The result is cached
// by content fingerprint: analyzing an unchanged file returns the stored
// analysis.
func (s *Service) AnalyzeStructure(ctx context.Context, uploadID uuid.UUID) (*model.Analysis, error) {
	u, err := s.upload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	v, err, _ := s.analyses.Do(uploadID.String(), func() (any, error) {
		return s.analyze(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Analysis), nil
}

func (s *Service) analyze(ctx context.Context, u *model.UploadJob) (*model.Analysis, error) {
	logger := logging.WithFields(ctx, "upload_id", u.ID)

	fingerprint, err := structure.FingerprintFile(u.Path)
	if err != nil {
		return nil, err
	}

	cached, err := s.store.FindAnalysis(ctx, u.ID, fingerprint)
	if err == nil {
		logger.Debug("analysis cache hit", "analysis_id", cached.ID)
		return cached, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, model.Infra("find analysis", err)
	}

	start := time.Now()
	res, err := s.analyzer.AnalyzeFile(ctx, u.Path)
	if err != nil {
		return nil, err
	}

	a := &model.Analysis{
		ID:          uuid.New(),
		UploadJobID: u.ID,
		Fingerprint: res.Fingerprint,
		RowCount:    res.RowCount,
		ColumnCount: res.ColumnCount,
		Headers:     res.Headers,
		Columns:     res.Columns,
		Delimiter:   string(res.Table.Delimiter),
		Encoding:    res.Table.Encoding,
		HasHeader:   res.Table.HasHeader,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAnalysis(ctx, a); err != nil {
		return nil, model.Infra("save analysis", err)
	}

	// Another process may have stored the same fingerprint first.
	stored, err := s.store.FindAnalysis(ctx, u.ID, fingerprint)
	if err != nil {
		return nil, model.Infra("reload analysis", err)
	}

	logger.Info("structure analyzed",
		"analysis_id", stored.ID,
		"rows", stored.RowCount,
		"columns", stored.ColumnCount,
		"encoding", stored.Encoding,
		"delimiter", stored.Delimiter,
		"has_header", stored.HasHeader,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stored, nil
}

// GetAnalysis returns a stored analysis.
func (s *Service) GetAnalysis(ctx context.Context, analysisID uuid.UUID) (*model.Analysis, error) {
	return s.analysis(ctx, analysisID)
}
