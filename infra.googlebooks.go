package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultGoogleBooksBaseURL = "https://www.googleapis.com/books/v1"
	maxVolumesBodySize        = 5 << 20
)

var (
	ErrConnection   = errors.New("remote api connection failed")
	ErrEmptyBody    = errors.New("remote api returned an empty body")
	ErrNoItems      = errors.New("no volume matches the isbn")
	ErrMissingTitle = errors.New("volume has no title")
)

var _ VolumesFinder = (*GoogleBooksClient)(nil)

// StatusError reports a completed http exchange with an unexpected status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote api returned status %d", e.Code)
}

// VolumesFinder looks up the raw volumes document of an isbn.
type VolumesFinder interface {
	LookupISBN(ctx context.Context, isbn string) ([]byte, error)
}

// GoogleBooksClient queries the Google Books volumes api.
type GoogleBooksClient struct {
	logger      *zap.Logger
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	userAgent   string
	limiter     *rate.Limiter
	maxAttempts int
}

// NewGoogleBooksClient builds the client from its configuration. A zero
// timeout keeps the default http client behavior and a zero rate limit
// disables the outbound limiter.
func NewGoogleBooksClient(logger *zap.Logger, config *GoogleBooksConfig) *GoogleBooksClient {
	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	attempts := config.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &GoogleBooksClient{
		logger:      logger,
		httpClient:  &http.Client{Timeout: config.Timeout},
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		userAgent:   config.UserAgent,
		limiter:     limiter,
		maxAttempts: attempts,
	}
}

// VolumesURL returns the lookup url for the isbn.
func (c *GoogleBooksClient) VolumesURL(isbn string) string {
	params := url.Values{}
	params.Set("q", "isbn:"+isbn)
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	return c.baseURL + "/volumes?" + params.Encode()
}

// LookupISBN issues the GET request and returns the response body. Only
// transport failures consume further attempts. The returned error wraps
// ErrConnection, ErrEmptyBody or is a *StatusError.
func (c *GoogleBooksClient) LookupISBN(ctx context.Context, isbn string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.get(ctx, c.VolumesURL(isbn))
		if err == nil || !errors.Is(err, ErrConnection) || ctx.Err() != nil {
			return body, err
		}
		lastErr = err
		c.logger.Debug("google books: lookup attempt failed",
			zap.String("book.isbn", isbn),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func (c *GoogleBooksClient) get(ctx context.Context, u string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxVolumesBodySize))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVolumesBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// Volume is the metadata extracted from the first matching volume.
type Volume struct {
	Title       string
	Subtitle    string
	Description string
	Thumbnail   string
	Authors     []string
	Categories  []string
}

type volumesDocument struct {
	Items []volumeItem `json:"items"`
}

type volumeItem struct {
	VolumeInfo *volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title       *string     `json:"title"`
	Subtitle    string      `json:"subtitle"`
	Description string      `json:"description"`
	Authors     []string    `json:"authors"`
	Categories  []string    `json:"categories"`
	ImageLinks  *imageLinks `json:"imageLinks"`
}

type imageLinks struct {
	Thumbnail string `json:"thumbnail"`
}

// ParseVolume decodes a volumes document and extracts the first item only.
// It returns ErrNoItems when no item is listed and ErrMissingTitle when the
// first volume has no title. Optional fields default to empty values.
func ParseVolume(body []byte) (Volume, error) {
	var doc volumesDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return Volume{}, fmt.Errorf("decode volumes document: %w", err)
	}
	if len(doc.Items) == 0 {
		return Volume{}, ErrNoItems
	}
	info := doc.Items[0].VolumeInfo
	if info == nil {
		return Volume{}, errors.New("first volume has no volumeInfo")
	}
	if info.Title == nil {
		return Volume{}, ErrMissingTitle
	}
	v := Volume{
		Title:       *info.Title,
		Subtitle:    info.Subtitle,
		Description: info.Description,
		Authors:     info.Authors,
		Categories:  info.Categories,
	}
	if info.ImageLinks != nil {
		v.Thumbnail = info.ImageLinks.Thumbnail
	}
	return v, nil
}
