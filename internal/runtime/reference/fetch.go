package reference

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/pointer"
)

var (
	// ErrNotFound is wrapped by fetchers when the addressed object does not exist.
	ErrNotFound = errors.New("docflow: object not found")
	// ErrUnsupportedScheme is returned for URLs no fetcher is registered for.
	ErrUnsupportedScheme = errors.New("docflow: unsupported URL scheme")
	// ErrAttributeNotFound is returned for attribute paths absent from the event.
	ErrAttributeNotFound = errors.New("docflow: attribute not found")
)

// Fetcher reads the object behind a locator of one URI scheme.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, locator string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}

// Scheme returns the lower-cased URI scheme of locator.
func Scheme(locator string) string {
	scheme, _, ok := strings.Cut(locator, ":")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

// StoreFetcher resolves cache:// locators through store.
func StoreFetcher(store pointer.Store) Fetcher {
	return FetcherFunc(func(ctx context.Context, locator string) ([]byte, error) {
		p, err := pointer.Parse(locator)
		if err != nil {
			return nil, err
		}
		data, err := store.Get(ctx, p)
		if errors.Is(err, pointer.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return data, err
	})
}

// DataFetcher decodes RFC 2397 data: URIs.
func DataFetcher() Fetcher {
	return FetcherFunc(func(_ context.Context, locator string) ([]byte, error) {
		rest, ok := strings.CutPrefix(locator, "data:")
		if !ok {
			return nil, fmt.Errorf("not a data URI: %q", locator)
		}
		header, payload, ok := strings.Cut(rest, ",")
		if !ok {
			return nil, errspkg.Fatal(fmt.Errorf("malformed data URI: missing comma"))
		}
		if strings.HasSuffix(header, ";base64") {
			data, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				return nil, errspkg.Fatal(fmt.Errorf("malformed data URI: %w", err))
			}
			return data, nil
		}
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, errspkg.Fatal(fmt.Errorf("malformed data URI: %w", err))
		}
		return []byte(decoded), nil
	})
}

// EncodeDataURI builds a base64 data: URI for small inline documents.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FileFetcher reads file:// locators from the local filesystem.
func FileFetcher() Fetcher {
	return FetcherFunc(func(_ context.Context, locator string) ([]byte, error) {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, errspkg.Fatal(fmt.Errorf("malformed file URL: %w", err))
		}
		data, err := os.ReadFile(u.Path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return data, err
	})
}

// HTTPFetcher GETs http(s) locators. Missing objects map to ErrNotFound,
// throttling and server errors are transient and other client errors fatal.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return FetcherFunc(func(ctx context.Context, locator string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, errspkg.Fatal(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, errspkg.Transient(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, errspkg.Transient(fmt.Errorf("GET %s: %s", locator, resp.Status))
		case resp.StatusCode >= 400:
			return nil, errspkg.Fatal(fmt.Errorf("GET %s: %s", locator, resp.Status))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errspkg.Transient(err)
		}
		return data, nil
	})
}

// S3Fetcher reads s3://bucket/key locators.
func S3Fetcher(client pointer.S3API) Fetcher {
	return FetcherFunc(func(ctx context.Context, locator string) ([]byte, error) {
		bucket, key, err := ParseS3URL(locator)
		if err != nil {
			return nil, errspkg.Fatal(err)
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if pointer.IsS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	})
}

// ParseS3URL splits s3://bucket/key. Keys are URL-unescaped.
func ParseS3URL(locator string) (bucket, key string, err error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("malformed s3 URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") || u.Host == "" {
		return "", "", fmt.Errorf("malformed s3 URL %q", locator)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 URL %q has no key", locator)
	}
	return u.Host, key, nil
}
