package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	atomicfile "github.com/natefinch/atomic"
	"github.com/ruteri/storage-router/interfaces"
)

// DefaultFilePublicBase is the path under which file-backed objects are served
// when the provider does not configure one.
const DefaultFilePublicBase = "/storage"

// ErrInvalidKey is returned for keys that are empty or escape the base directory.
var ErrInvalidKey = errors.New("invalid storage key")

// FileDriver stores blobs on the local file system at <baseDir>/<key>.
// Public URLs are formed by mounting the key under a configured base path.
type FileDriver struct {
	baseDir    string
	publicBase string
	log        *slog.Logger
}

var (
	_ interfaces.Driver            = (*FileDriver)(nil)
	_ interfaces.PublicURLResolver = (*FileDriver)(nil)
	_ interfaces.SignedURLResolver = (*FileDriver)(nil)
)

// NewFileDriver creates a file driver rooted at baseDir, creating the directory if needed.
func NewFileDriver(baseDir, publicBase string, log *slog.Logger) (*FileDriver, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: empty base directory", interfaces.ErrConfiguration)
	}
	if log == nil {
		log = slog.Default()
	}
	if publicBase == "" {
		publicBase = DefaultFilePublicBase
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileDriver{
		baseDir:    baseDir,
		publicBase: strings.TrimSuffix(publicBase, "/"),
		log:        log,
	}, nil
}

// Put writes data to <baseDir>/<key>, creating intermediate directories.
// The file is replaced atomically so readers never observe a partial blob.
func (d *FileDriver) Put(ctx context.Context, key string, data []byte, contentType string) (*interfaces.PutResult, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	filePath := filepath.Join(d.baseDir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if err := atomicfile.WriteFile(filePath, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	d.log.Debug("Stored blob in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	u, _ := d.PublicURL(key)
	return &interfaces.PutResult{Key: key, URL: u}, nil
}

// PublicURL maps key onto the public base path.
func (d *FileDriver) PublicURL(key string) (string, bool) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", false
	}

	return d.publicBase + "/" + escapeKeyPath(key), true
}

// SignedURL returns the public URL; local files have no signing scheme.
func (d *FileDriver) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	u, ok := d.PublicURL(key)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return u, nil
}

// Delete removes the file; a missing file is not an error.
func (d *FileDriver) Delete(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	err = os.Remove(filepath.Join(d.baseDir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Health checks that the base directory exists.
func (d *FileDriver) Health(ctx context.Context) interfaces.HealthStatus {
	fi, err := os.Stat(d.baseDir)
	if err != nil {
		d.log.Debug("File backend unavailable", "err", err)
		return interfaces.Unhealthy(err)
	}
	if !fi.IsDir() {
		return interfaces.Unhealthy(fmt.Errorf("%s is not a directory", d.baseDir))
	}
	return interfaces.Healthy()
}

// BaseDir returns the directory blobs are written to.
func (d *FileDriver) BaseDir() string {
	return d.baseDir
}

// escapeKeyPath escapes each segment of a slash-separated key, keeping the separators.
func escapeKeyPath(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// normalizeKey strips leading slashes and rejects keys that would leave the base directory.
func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}
