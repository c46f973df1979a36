// Package loader reads card images from URLs or local paths.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/meishi/internal/cardid"
)

// DefaultTimeout bounds a remote image download.
const DefaultTimeout = 10 * time.Second

// maxImageBytes is the largest image Load accepts.
const maxImageBytes = 20 << 20

var errTooLarge = fmt.Errorf("image exceeds %d bytes", maxImageBytes)

// ErrImageNotFound is returned when the path does not exist or the server answers 404.
var ErrImageNotFound = errors.New("image not found")

// LoadError describes any other failure to load an image.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load image %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Image is a loaded card image.
type Image struct {
	Bytes []byte
	// Hash is the hex SHA-256 of Bytes.
	Hash     string
	MIMEType string
	Source   string
}

// Loader loads images over HTTP(S) or from the filesystem.
type Loader struct {
	client *http.Client
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient replaces the HTTP client (and its timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// New creates a Loader with a DefaultTimeout HTTP client.
func New(opts ...Option) *Loader {
	l := &Loader{client: &http.Client{Timeout: DefaultTimeout}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load reads source, which is an http(s) URL or a local path.
func (l *Loader) Load(ctx context.Context, source string) (*Image, error) {
	var (
		data     []byte
		mimeType string
		err      error
	)
	if IsRemote(source) {
		data, mimeType, err = l.fetch(ctx, source)
	} else {
		data, err = readFile(source)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &LoadError{Source: source, Err: errors.New("empty image")}
	}
	if mimeType == "" {
		mimeType = detectMIME(source, data)
	}
	return &Image{
		Bytes:    data,
		Hash:     cardid.ContentHash(data),
		MIMEType: mimeType,
		Source:   source,
	}, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &LoadError{Source: url, Err: err}
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", &LoadError{Source: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", fmt.Errorf("%w: %s", ErrImageNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &LoadError{Source: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	data, err := readLimited(resp.Body)
	if err != nil {
		return nil, "", &LoadError{Source: url, Err: err}
	}
	mimeType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = ""
	}
	return data, mimeType, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()
	data, err := readLimited(f)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	return data, nil
}

// readLimited reads r fully, failing rather than truncating past maxImageBytes.
func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, errTooLarge
	}
	return data, nil
}

// detectMIME sniffs the content, falling back to the file extension and then image/jpeg.
func detectMIME(source string, data []byte) string {
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(source))); strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return "image/jpeg"
}
