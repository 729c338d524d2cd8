package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
)

// ErrNotApplicable is returned by a strategy that cannot handle a reference
var ErrNotApplicable = errors.New("strategy not applicable")

// Strategy fetches the raw bytes behind a reference. The resolver bounds each
// call with its own timeout.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, ref Reference) ([]byte, error)
}

// URLFunc maps a reference to the URL a strategy downloads
type URLFunc func(ref Reference) (string, bool)

// HTTPStrategy downloads a URL derived from the reference
type HTTPStrategy struct {
	name     string
	client   *http.Client
	urlFor   URLFunc
	maxBytes int64
}

// NewHTTPStrategy creates an HTTP download strategy
func NewHTTPStrategy(name string, client *http.Client, urlFor URLFunc, maxBytes int64) *HTTPStrategy {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStrategy{name: name, client: client, urlFor: urlFor, maxBytes: maxBytes}
}

// Name returns the strategy name used in logs
func (s *HTTPStrategy) Name() string {
	return s.name
}

// Fetch downloads the strategy URL for ref
func (s *HTTPStrategy) Fetch(ctx context.Context, ref Reference) ([]byte, error) {
	target, ok := s.urlFor(ref)
	if !ok {
		return nil, ErrNotApplicable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "asset-form-generator/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: http %d", s.name, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		return nil, fmt.Errorf("%s: got an HTML page instead of an image", s.name)
	}

	return readLimited(resp.Body, s.maxBytes)
}

// DriveDownloadURL is the direct download endpoint for a Drive file
func DriveDownloadURL(ref Reference) (string, bool) {
	if ref.DriveID == "" {
		return "", false
	}
	return "https://drive.google.com/uc?export=download&id=" + ref.DriveID, true
}

// DriveThumbnailURL is the large thumbnail endpoint for a Drive file
func DriveThumbnailURL(ref Reference) (string, bool) {
	if ref.DriveID == "" {
		return "", false
	}
	return "https://drive.google.com/thumbnail?id=" + ref.DriveID + "&sz=w1000", true
}

// DriveContentURL serves Drive content through googleusercontent
func DriveContentURL(ref Reference) (string, bool) {
	if ref.DriveID == "" {
		return "", false
	}
	return "https://lh3.googleusercontent.com/d/" + ref.DriveID, true
}

// DirectURL downloads the reference itself when it is an http(s) link
func DirectURL(ref Reference) (string, bool) {
	lower := strings.ToLower(ref.Raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref.Raw, true
	}
	return "", false
}

// GCSStrategy reads gs://bucket/object references from Cloud Storage
type GCSStrategy struct {
	client   *storage.Client
	maxBytes int64
}

// NewGCSStrategy creates a Cloud Storage strategy
func NewGCSStrategy(client *storage.Client, maxBytes int64) *GCSStrategy {
	return &GCSStrategy{client: client, maxBytes: maxBytes}
}

// Name returns the strategy name used in logs
func (s *GCSStrategy) Name() string {
	return "gcs"
}

// Fetch reads the object named by ref
func (s *GCSStrategy) Fetch(ctx context.Context, ref Reference) ([]byte, error) {
	if ref.Bucket == "" || ref.Object == "" || s.client == nil {
		return nil, ErrNotApplicable
	}
	r, err := s.client.Bucket(ref.Bucket).Object(ref.Object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to open gs://%s/%s: %w", ref.Bucket, ref.Object, err)
	}
	defer r.Close()
	return readLimited(r, s.maxBytes)
}

// DefaultStrategies returns the download order used for form uploads
func DefaultStrategies(client *http.Client, gcs *storage.Client, maxBytes int64) []Strategy {
	strategies := []Strategy{
		NewHTTPStrategy("drive_download", client, DriveDownloadURL, maxBytes),
		NewHTTPStrategy("drive_thumbnail", client, DriveThumbnailURL, maxBytes),
		NewHTTPStrategy("drive_content", client, DriveContentURL, maxBytes),
		NewHTTPStrategy("direct", client, DirectURL, maxBytes),
	}
	if gcs != nil {
		strategies = append(strategies, NewGCSStrategy(gcs, maxBytes))
	}
	return strategies
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("image too large: more than %d bytes", maxBytes)
	}
	return data, nil
}
