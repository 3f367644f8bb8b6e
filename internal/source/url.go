package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bianoble/glance-stream-sync/internal/httpclient"
)

// DefaultMaxSize caps a single metadata document. Product files for the
// full Ubuntu release stream are a few megabytes.
const DefaultMaxSize = 64 << 20

// URLReader fetches metadata over HTTP(S).
type URLReader struct {
	Client  httpclient.Doer
	MaxSize int64         // max document size in bytes (0 = no limit)
	Timeout time.Duration // per-document timeout (0 = no extra timeout beyond context)
}

// ReadFile fetches base joined with relPath.
func (u *URLReader) ReadFile(ctx context.Context, base, relPath string) ([]byte, error) {
	return u.fetchURL(ctx, JoinURL(base, relPath), relPath)
}

func (u *URLReader) fetchURL(ctx context.Context, url, name string) ([]byte, error) {
	if u.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
	}

	client := u.Client
	if client == nil {
		client = httpclient.New(httpclient.Options{})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &SourceError{Source: name, Operation: "fetch", Err: fmt.Errorf("creating request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &SourceError{Source: name, Operation: "fetch", Err: fmt.Errorf("fetching %s: %w", url, err), Hint: "check network connectivity and proxy settings"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{
			Source:    name,
			Operation: "fetch",
			Err:       fmt.Errorf("HTTP %d from %s", resp.StatusCode, url),
			Hint:      "check the mirror url and path",
		}
	}

	var reader io.Reader = resp.Body
	if u.MaxSize > 0 {
		reader = io.LimitReader(resp.Body, u.MaxSize+1)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, &SourceError{Source: name, Operation: "fetch", Err: fmt.Errorf("reading response: %w", err)}
	}

	if u.MaxSize > 0 && int64(len(content)) > u.MaxSize {
		return nil, &SourceError{
			Source:    name,
			Operation: "fetch",
			Err:       fmt.Errorf("document exceeds max size %d bytes", u.MaxSize),
		}
	}

	return content, nil
}

// JoinURL appends relPath to base with exactly one slash between them.
func JoinURL(base, relPath string) string {
	if relPath == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(relPath, "/")
}
