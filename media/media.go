// Package media downloads and stores evidence files attached to
// monitoring results. Files are streamed to disk with a hard size cap,
// hashed with SHA-256 as they are written, and laid out per task and
// result so an investigator can walk the evidence tree directly.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
)

// Downloader fetches remote media and stores it under the evidence root.
type Downloader struct {
	basePath    string
	maxFileSize int64
	client      *http.Client
}

// NewDownloader creates a media downloader writing below basePath.
func NewDownloader(basePath string, maxFileSize int64, timeout time.Duration) *Downloader {
	return &Downloader{
		basePath:    basePath,
		maxFileSize: maxFileSize,
		client:      &http.Client{Timeout: timeout},
	}
}

// Downloaded describes one stored media file.
type Downloaded struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// DownloadAll fetches every URL for a result. Individual failures are
// logged and skipped so one dead link does not lose the rest of the
// evidence.
func (d *Downloader) DownloadAll(ctx context.Context, taskID, resultID int64, urls []string) []Downloaded {
	var files []Downloaded
	for _, u := range urls {
		f, err := d.Download(ctx, taskID, resultID, u)
		if err != nil {
			log.Warnf("failed to download media for result %d: %v", resultID, err)
			continue
		}
		files = append(files, *f)
	}
	return files
}

// Download streams one remote file to disk and returns its path and
// hash. Files exceeding the size cap are aborted and removed.
func (d *Downloader) Download(ctx context.Context, taskID, resultID int64, rawURL string) (*Downloaded, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media url returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 && resp.ContentLength > d.maxFileSize {
		return nil, fmt.Errorf("media file is %d bytes, over the %d byte limit", resp.ContentLength, d.maxFileSize)
	}

	dir := d.resultDir(taskID, resultID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	name := uuid.New().String() + extensionFor(rawURL, resp.Header.Get("Content-Type"))
	path := filepath.Join(dir, name)

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), io.LimitReader(resp.Body, d.maxFileSize+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write media file: %w", err)
	}
	if written > d.maxFileSize {
		os.Remove(path)
		return nil, fmt.Errorf("media file exceeded the %d byte limit", d.maxFileSize)
	}

	return &Downloaded{
		LocalPath: path,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		Size:      written,
	}, nil
}

// EncodeDataURI reads a stored file and returns it as a base64 data URI
// for vision model requests.
func EncodeDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read media file: %w", err)
	}
	mime := mimeFor(path)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// VerifyFile recomputes a stored file's SHA-256 and compares it with the
// hash recorded at capture time.
func VerifyFile(path, wantHash string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return false, fmt.Errorf("failed to hash media file: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)) == wantHash, nil
}

// RemoveResultMedia deletes every stored file for one result. Called
// when the file paths could not be recorded on the result row, so the
// files would otherwise sit orphaned on disk.
func (d *Downloader) RemoveResultMedia(taskID, resultID int64) error {
	return os.RemoveAll(d.resultDir(taskID, resultID))
}

// StorageStats walks a task's evidence directory and returns file count
// and total bytes.
func (d *Downloader) StorageStats(taskID int64) (files int, bytes int64, err error) {
	root := filepath.Join(d.basePath, "monitoring", fmt.Sprintf("task_%d", taskID))
	err = filepath.Walk(root, func(_ string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if !info.IsDir() {
			files++
			bytes += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, 0, nil
	}
	return files, bytes, err
}

// IsImage reports whether a stored file looks like an image the vision
// models accept.
func IsImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}

func (d *Downloader) resultDir(taskID, resultID int64) string {
	return filepath.Join(d.basePath, "monitoring",
		fmt.Sprintf("task_%d", taskID), fmt.Sprintf("result_%d", resultID))
}

func extensionFor(rawURL, contentType string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		rawURL = rawURL[:i]
	}
	if ext := strings.ToLower(filepath.Ext(rawURL)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "video/mp4"):
		return ".mp4"
	}
	return ".bin"
}

func mimeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
