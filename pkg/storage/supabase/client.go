// Package supabase uploads objects to Supabase Storage buckets over its REST API.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/angelmondragon/miravo-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
)

const maxErrorBody = 64 << 10

type Client struct {
	base    string
	anonKey string
	http    *httpclient.Client
}

func NewClient(cfg config.SupabaseConfig, hc *httpclient.Client) (*Client, error) {
	if hc == nil {
		return nil, errors.New("supabase storage: http client required")
	}
	base := strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("supabase storage: project url required")
	}
	return &Client{base: base + "/storage/v1", anonKey: cfg.AnonKey, http: hc}, nil
}

// Bucket returns a handle on the named bucket.
func (c *Client) Bucket(name string) *Bucket {
	if c == nil {
		return nil
	}
	return &Bucket{name: name, client: c}
}

type Bucket struct {
	name   string
	client *Client
}

func (b *Bucket) Name() string { return b.name }

// Upload writes data at path, replacing any existing object. The request is
// made with the user's access token so bucket policies apply to them.
func (b *Bucket) Upload(ctx context.Context, accessToken, path, contentType string, data []byte) error {
	if accessToken == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated")
	}
	header := http.Header{}
	header.Set("apikey", b.client.anonKey)
	header.Set("Authorization", "Bearer "+accessToken)
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", "max-age=3600")
	header.Set("x-upsert", "true")

	resp, err := b.client.http.Do(ctx, http.MethodPost, b.objectURL("object", path), header, data)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storage unavailable")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return uploadError(resp)
}

// PublicURL is where a public bucket serves the object at path.
func (b *Bucket) PublicURL(path string) string {
	return b.objectURL("object/public", path)
}

func (b *Bucket) objectURL(prefix, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/%s/%s", b.client.base, prefix, url.PathEscape(b.name), strings.Join(segments, "/"))
}

// errorBody is the storage API error shape. statusCode is a string and can
// differ from the HTTP status (413 arrives as a 400).
type errorBody struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func uploadError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	status := resp.StatusCode
	if body.StatusCode == "413" {
		status = http.StatusRequestEntityTooLarge
	}
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, msg)
	case http.StatusForbidden:
		return pkgerrors.New(pkgerrors.CodeForbidden, msg)
	case http.StatusRequestEntityTooLarge:
		return pkgerrors.New(pkgerrors.CodeValidation, "file too large")
	}
	return pkgerrors.New(pkgerrors.CodeDependency, "storage upload failed").
		WithDetails(map[string]any{"status": resp.StatusCode, "message": msg})
}
