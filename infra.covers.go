package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const maxCoverSize = 10 << 20

// CoverFetcher downloads and stores book cover images.
type CoverFetcher interface {
	Download(ctx context.Context, isbn, coverURL string) (string, error)
	Path(isbn string) string
}

type coverStore struct {
	logger     *zap.Logger
	httpClient *http.Client
	folder     string
	maxWidth   int
}

// NewCoverStore provides a CoverFetcher saving jpeg files into the covers folder.
func NewCoverStore(logger *zap.Logger, config *CoversConfig) CoverFetcher {
	return &coverStore{
		logger:     logger,
		httpClient: &http.Client{Timeout: config.Timeout},
		folder:     config.Folder,
		maxWidth:   config.MaxWidth,
	}
}

// Path returns the location of the cover of the book.
func (cs *coverStore) Path(isbn string) string {
	return filepath.Join(cs.folder, isbn+".jpg")
}

// Download fetches the image, shrinks it to the max width if needed and
// saves it as jpeg. It returns the saved file path.
func (cs *coverStore) Download(ctx context.Context, isbn, coverURL string) (string, error) {
	if coverURL == "" {
		return "", errors.New("empty cover url")
	}
	if !IsCanonicalISBN(isbn) {
		return "", fmt.Errorf("%w: %q", ErrInvalidISBN, isbn)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := cs.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download cover: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover download returned status %d", resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxCoverSize), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode cover: %w", err)
	}
	if cs.maxWidth > 0 && img.Bounds().Dx() > cs.maxWidth {
		img = imaging.Resize(img, cs.maxWidth, 0, imaging.Lanczos)
	}

	if err = os.MkdirAll(cs.folder, 0o755); err != nil {
		return "", fmt.Errorf("failed to create covers folder: %w", err)
	}
	path := cs.Path(isbn)
	if err = imaging.Save(img, path, imaging.JPEGQuality(85)); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to save cover: %w", err)
	}
	return path, nil
}
