// Package document loads the source document, extracts its text, and caches
// the chunked result for the lifetime of the process.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/docchat/docchat/internal/chunker"
)

// ErrUnavailable reports that the source document could not be read. The
// load is retried on the next request; failures are never cached.
var ErrUnavailable = errors.New("document unavailable")

// Provider supplies the chunked text of the source document.
type Provider interface {
	Chunks(ctx context.Context) ([]string, error)
}

// FileProvider reads a single document from disk, chunks it once, and serves
// the cached chunks afterwards. Concurrent cold-start loads collapse into a
// single read via singleflight.
type FileProvider struct {
	path      string
	chunkSize int

	group singleflight.Group

	mu     sync.RWMutex
	chunks []string
	loaded bool
}

// NewFileProvider creates a provider for the document at path. PDF files are
// text-extracted; anything else is read as plain text. chunkSize <= 0 falls
// back to the chunker default.
func NewFileProvider(path string, chunkSize int) *FileProvider {
	return &FileProvider{path: path, chunkSize: chunkSize}
}

// Chunks returns the chunked document text, loading and caching it on first
// call. A missing or unreadable file yields ErrUnavailable.
func (p *FileProvider) Chunks(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	if p.loaded {
		chunks := p.chunks
		p.mu.RUnlock()
		return chunks, nil
	}
	p.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := p.group.Do("load", func() (any, error) {
		// Re-check under the flight: another caller may have finished
		// the load while we queued.
		p.mu.RLock()
		loaded := p.loaded
		chunks := p.chunks
		p.mu.RUnlock()
		if loaded {
			return chunks, nil
		}

		text, err := extractText(p.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, p.path, err)
		}
		chunks = chunker.Split(text, p.chunkSize)

		p.mu.Lock()
		p.chunks = chunks
		p.loaded = true
		p.mu.Unlock()
		return chunks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func extractText(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return pdfText(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
