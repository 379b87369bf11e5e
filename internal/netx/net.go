// Package netx fetches artifacts from the public download endpoint the way a
// customer's browser would.
package netx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
)

// APIError is a non-200 answer from the download endpoint.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("download failed: %d", e.Status)
	}
	return fmt.Sprintf("download failed: %d %s: %s", e.Status, e.Code, e.Message)
}

// Download is an open artifact stream. Callers must Close Body.
type Download struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// Fetch issues a GET for url. On success the body is left open for the
// caller; on failure the JSON error envelope is decoded into *APIError.
func Fetch(ctx context.Context, client *http.Client, url string) (*Download, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}

	return &Download{
		FileName:    fileName(resp),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

func fileName(resp *http.Response) string {
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		if name := path.Base(params["filename"]); name != "." && name != "/" && name != "" {
			return name
		}
	}
	if name := path.Base(resp.Request.URL.Query().Get("file")); name != "." && name != "/" {
		return name
	}
	return "download.bin"
}
