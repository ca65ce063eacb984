// Package media relays user uploads to an external file host.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"tube-accounts/internal/observability"
)

const (
	BackendCloudinary = "cloudinary"
	BackendS3         = "s3"

	defaultMaxUploadBytes = 10 << 20
)

var (
	errEmptyFile    = errors.New("file is empty")
	errFileTooLarge = errors.New("file is too large")
	errNotAnImage   = errors.New("file must be an image")
)

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// Uploader pushes a local file to a host and returns its public URL.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, localPath string) (string, error)
}

type RelayOptions struct {
	// TempDir holds staged uploads. Empty means os.TempDir().
	TempDir  string
	MaxBytes int64
}

// Relay stages a multipart file on disk, hands it to the Uploader and always
// removes the staged copy afterwards, whatever the outcome.
type Relay struct {
	uploader Uploader
	tempDir  string
	maxBytes int64
	logger   *observability.Logger
}

func NewRelay(uploader Uploader, opts RelayOptions, logger *observability.Logger) *Relay {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxUploadBytes
	}
	return &Relay{
		uploader: uploader,
		tempDir:  opts.TempDir,
		maxBytes: opts.MaxBytes,
		logger:   logger,
	}
}

// Upload returns the hosted URL, or "" when the file could not be staged or
// uploaded. The reason is logged, not returned.
func (r *Relay) Upload(ctx context.Context, header *multipart.FileHeader) string {
	if header == nil {
		return ""
	}

	var hostedURL string
	err := r.withStagedFile(header, func(localPath string) error {
		u, err := r.uploader.Upload(ctx, localPath)
		if err != nil {
			return err
		}
		hostedURL = u
		return nil
	})
	if err != nil {
		observability.MediaUploads.WithLabelValues(r.uploader.Name(), "failure").Inc()
		r.logger.Warn("upload_failed", map[string]any{
			"backend":  r.uploader.Name(),
			"filename": header.Filename,
			"error":    err.Error(),
		})
		return ""
	}

	observability.MediaUploads.WithLabelValues(r.uploader.Name(), "success").Inc()
	return hostedURL
}

func (r *Relay) withStagedFile(header *multipart.FileHeader, fn func(localPath string) error) error {
	src, err := header.Open()
	if err != nil {
		return fmt.Errorf("open multipart file: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(r.tempDir, "upload-*"+extension(header.Filename))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	localPath := tmp.Name()
	defer r.remove(localPath)

	written, copyErr := io.Copy(tmp, io.LimitReader(src, r.maxBytes+1))
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("stage upload: %w", copyErr)
	}
	if written == 0 {
		return errEmptyFile
	}
	if written > r.maxBytes {
		return errFileTooLarge
	}

	if err := requireImage(localPath); err != nil {
		return err
	}

	return fn(localPath)
}

func (r *Relay) remove(localPath string) {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.Error("upload_cleanup_failed", map[string]any{"path": localPath, "error": err.Error()})
	}
}

func requireImage(localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open staged upload: %w", err)
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read staged upload: %w", err)
	}
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		return errNotAnImage
	}
	return nil
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !safeExt.MatchString(ext) {
		return ""
	}
	return ext
}
