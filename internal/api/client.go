package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/vaultsync/vaultsync/internal/config"
)

// retryLogger implements the retryablehttp.LeveledLogger interface.
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only surface errors and warnings from the retry layer
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	// Only surface errors and warnings from the retry layer
}

// Client is the HTTP client for the remote storage service. It covers the
// folder encryption-status, listing, lock, and metadata endpoints plus the
// bulk file PUT used by the upload pipeline.
type Client struct {
	httpClient  *nethttp.Client
	baseURL     string
	username    string
	appPassword string
}

// NewClient creates a new API client from configuration.
func NewClient(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 4
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = &retryLogger{}

	return &Client{
		httpClient:  retryClient.StandardClient(),
		baseURL:     strings.TrimSuffix(cfg.ServerURL, "/"),
		username:    cfg.Username,
		appPassword: cfg.AppPassword,
	}, nil
}

// doRequest performs an HTTP request with authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, header nethttp.Header) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.username, c.appPassword)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// doJSON performs a request with an optional JSON body and decodes the JSON
// response into out (if out is non-nil). Non-2xx statuses become StatusError.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body interface{}, header nethttp.Header, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
		if header == nil {
			header = nethttp.Header{}
		}
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.doRequest(ctx, method, path, reqBody, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}
	return nil
}

// FolderEncryptionStatus asks whether the folder at the given remote path is
// end-to-end encrypted.
func (c *Client) FolderEncryptionStatus(ctx context.Context, folderPath string) (bool, error) {
	var result struct {
		Path      string `json:"path"`
		Encrypted bool   `json:"encrypted"`
	}

	path := "/api/v1/folders/encryption-status?path=" + url.QueryEscape(folderPath)
	if err := c.doJSON(ctx, "folder encryption status", "GET", path, nil, nil, &result); err != nil {
		return false, err
	}
	return result.Encrypted, nil
}

// FolderEntry is one entry of a folder listing restricted to the
// resourcetype and fileid properties.
type FolderEntry struct {
	Path         string `json:"path"`
	FileID       string `json:"fileId"`
	ResourceType string `json:"resourceType"` // "dir" or "file"
}

// ListFolder lists a folder, requesting only resource-type and file-id
// properties. The listing includes an entry for the queried path itself.
func (c *Client) ListFolder(ctx context.Context, folderPath string) ([]FolderEntry, error) {
	var result struct {
		Entries []FolderEntry `json:"entries"`
	}

	path := "/api/v1/folders/list?path=" + url.QueryEscape(folderPath) +
		"&props=" + url.QueryEscape("resourcetype,fileid")
	if err := c.doJSON(ctx, "list folder", "GET", path, nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// LockFolder acquires the advisory lock on a folder. On contention the
// server answers 423, surfaced as a StatusError.
func (c *Client) LockFolder(ctx context.Context, folderID string) (string, error) {
	var result struct {
		FileID string `json:"fileId"`
		Token  string `json:"token"`
	}

	path := fmt.Sprintf("/api/v1/folders/%s/lock", url.PathEscape(folderID))
	if err := c.doJSON(ctx, "lock folder", "POST", path, nil, nil, &result); err != nil {
		return "", err
	}
	if result.Token == "" {
		return "", fmt.Errorf("lock folder returned an empty token")
	}
	return result.Token, nil
}

// UnlockFolder releases the advisory lock using the token obtained from
// LockFolder.
func (c *Client) UnlockFolder(ctx context.Context, folderID, token string) error {
	header := nethttp.Header{}
	header.Set("X-Lock-Token", token)

	path := fmt.Sprintf("/api/v1/folders/%s/lock", url.PathEscape(folderID))
	return c.doJSON(ctx, "unlock folder", "DELETE", path, nil, header, nil)
}

// FolderMetadata fetches the folder's encrypted-file metadata document.
// A 404 means the folder has no metadata yet and is returned as an empty
// body with the status code, not as an error.
func (c *Client) FolderMetadata(ctx context.Context, folderID string) ([]byte, int, error) {
	path := fmt.Sprintf("/api/v1/folders/%s/metadata", url.PathEscape(folderID))
	resp, err := c.doRequest(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == nethttp.StatusNotFound {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode != nethttp.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, &StatusError{Op: "fetch metadata", StatusCode: resp.StatusCode, Body: string(b)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read metadata response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

// UpdateFolderMetadata writes the full metadata document back. The lock
// token must be the one under which the document was fetched; the server
// rejects a mismatched token.
func (c *Client) UpdateFolderMetadata(ctx context.Context, folderID string, document []byte, token string) error {
	header := nethttp.Header{}
	header.Set("X-Lock-Token", token)
	header.Set("Content-Type", "application/json")

	path := fmt.Sprintf("/api/v1/folders/%s/metadata", url.PathEscape(folderID))
	resp, err := c.doRequest(ctx, "PUT", path, bytes.NewReader(document), header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{Op: "update metadata", StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}

// PutFile uploads raw file content to the given remote path. Used by the
// upload pipeline for the bulk ciphertext transfer; size must match the
// number of bytes r will produce.
func (c *Client) PutFile(ctx context.Context, remotePath string, r io.Reader, size int64) error {
	path := "/api/v1/files?path=" + url.QueryEscape(remotePath)
	req, err := nethttp.NewRequestWithContext(ctx, "PUT", c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.appPassword)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = size

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK && resp.StatusCode != nethttp.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{Op: "put file", StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}
