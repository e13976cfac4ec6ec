package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
)

const snippetLimit = 8 << 10

// Snippet trims a response body for error messages and logs.
func Snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return s
}

// PostJSON sends body as JSON and returns the status code and the raw response
// body. Only transport failures are errors: callers decide what a non-2xx or an
// unparseable body means.
func PostJSON(h *http.Client, ctx context.Context, url string, body any, headers map[string]string) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s: %w", url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := h.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, responseBytes, nil
}

// Upload posts a multipart form with the file at filePath under fileField and
// decodes a JSON reply into r.
func Upload[r any](h *http.Client, ctx context.Context, url string, fields map[string]string, fileField, filePath string) (r, error) {
	var response r

	f, err := os.Open(filePath)
	if err != nil {
		return response, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, val := range fields {
		if err := mw.WriteField(key, val); err != nil {
			return response, err
		}
	}
	part, err := mw.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return response, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return response, err
	}
	if err := mw.Close(); err != nil {
		return response, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return response, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.Do(req)
	if err != nil {
		return response, err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return response, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, fmt.Errorf("http %s: %s: %s", url, resp.Status, Snippet(responseBytes))
	}

	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return response, fmt.Errorf("unmarshal %s: %w: %s", url, err, Snippet(responseBytes))
	}

	return response, nil
}

func Download(h *http.Client, ctx context.Context, url string, headers map[string]string) (*http.Response, error) {

	var resp *http.Response

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resp, err
	}

	for key, val := range headers {
		req.Header.Add(key, val)
	}

	resp, err = h.Do(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		_ = resp.Body.Close()
		return resp, fmt.Errorf("download failed: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	return resp, nil
}
