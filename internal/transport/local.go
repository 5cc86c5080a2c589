package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"mergeflow/internal/fileutil"
	"mergeflow/internal/logging"
	"mergeflow/internal/media"
	"mergeflow/internal/pipeline"
	"mergeflow/internal/services"
	"mergeflow/internal/textutil"
)

// captionSuffix names the sidecar holding an upload's caption.
const captionSuffix = ".caption.txt"

// Local implements pipeline.Transport against the local machine.
type Local struct {
	outbox string
	client *http.Client
	logger *slog.Logger
}

// NewLocal returns a transport that delivers uploads into outbox.
func NewLocal(outbox string, timeout time.Duration, logger *slog.Logger) (*Local, error) {
	if strings.TrimSpace(outbox) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "init", "outbox directory is required", nil)
	}
	if err := os.MkdirAll(outbox, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "init", "create outbox", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Local{
		outbox: outbox,
		client: &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "transport"),
	}, nil
}

// Outbox returns the upload directory.
func (l *Local) Outbox() string { return l.outbox }

// Download copies the content behind file's handle to dest.
func (l *Local) Download(ctx context.Context, file media.File, dest string, progress pipeline.ProgressFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	handle := strings.TrimSpace(file.Handle())
	if handle == "" {
		return "", services.Wrap(services.ErrDownload, "download", "resolve", file.Name()+": empty handle", nil)
	}

	var (
		body  io.ReadCloser
		total int64
		err   error
	)
	switch {
	case strings.HasPrefix(handle, "http://"), strings.HasPrefix(handle, "https://"):
		body, total, err = l.openHTTP(ctx, handle)
	default:
		body, total, err = openLocal(handle)
	}
	if err != nil {
		return "", services.Wrap(services.ErrDownload, "download", "open", file.Name(), err)
	}
	defer body.Close()
	if total <= 0 {
		total = file.Size()
	}

	if err := writeWithProgress(ctx, dest, body, total, progress); err != nil {
		_ = os.Remove(dest)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrDownload, "download", "write", file.Name(), err)
	}
	l.logger.Debug("download complete",
		logging.String("name", file.Name()),
		logging.String("dest", dest),
	)
	return dest, nil
}

func (l *Local) openHTTP(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("GET %s: %s", redact(rawURL), resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}

func openLocal(handle string) (io.ReadCloser, int64, error) {
	path := handle
	if strings.HasPrefix(handle, "file://") {
		u, err := url.Parse(handle)
		if err != nil {
			return nil, 0, fmt.Errorf("parse handle: %w", err)
		}
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	return f, info.Size(), nil
}

// Upload delivers path into the outbox under a sanitized name. A caption
// that differs from the file name is written next to it.
func (l *Local) Upload(ctx context.Context, path, caption string, progress pipeline.ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrUpload, "upload", "stat", filepath.Base(path), err)
	}

	name := textutil.SanitizeFileName(filepath.Base(path))
	dest := filepath.Join(l.outbox, name)
	tmp := filepath.Join(l.outbox, "."+name+".upload.tmp")

	if err := fileutil.CopyVerified(ctx, path, tmp, progress); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrUpload, "upload", "copy", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrUpload, "upload", "publish", name, err)
	}

	caption = strings.TrimSpace(caption)
	if caption != "" && caption != name {
		if err := renameio.WriteFile(dest+captionSuffix, []byte(caption+"\n"), 0o644); err != nil {
			l.logger.Warn("caption sidecar not written",
				logging.String("dest", dest),
				logging.Error(err),
				logging.String(logging.FieldEventType, "caption_write_failed"),
				logging.String(logging.FieldImpact, "upload delivered without caption"),
			)
		}
	}
	l.logger.Info("upload delivered",
		logging.String("dest", dest),
		logging.Int64("size_bytes", info.Size()),
		logging.String(logging.FieldEventType, "upload_delivered"),
	)
	return nil
}

func writeWithProgress(ctx context.Context, dest string, r io.Reader, total int64, progress pipeline.ProgressFunc) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()
	if _, err := fileutil.CopyContext(ctx, out, r, total, progress); err != nil {
		return err
	}
	return out.Close()
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
