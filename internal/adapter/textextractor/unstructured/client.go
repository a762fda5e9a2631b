// Package unstructured integrates the Unstructured partitioning service for
// document chunking.
//
// It posts uploaded files to POST {base}/general/v0/general as multipart
// form data and returns the text of each returned element. Chunking is
// delegated to the service via by_title strategy parameters.
package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/claymoreai/claymore/pkg/textx"
)

// Client is a minimal Unstructured HTTP client implementing domain.Chunker.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs an Unstructured client with a timeout sized for large
// documents.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Chunking parameters kept in lockstep with the partitioning service's
// by_title defaults used by the workers.
var formFields = map[string]string{
	"strategy":              "auto",
	"chunking_strategy":     "by_title",
	"new_after_n_chars":     "500",
	"max_characters":        "1000",
	"combine_under_n_chars": "500",
}

type element struct {
	Text string `json:"text"`
}

// ExtractChunks uploads the file at path and returns one string per returned
// element, sanitized and with empty elements dropped.
func (c *Client) ExtractChunks(ctx context.Context, fileName, path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("op=unstructured.ExtractChunks read: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", fileName)
	if err != nil {
		return nil, fmt.Errorf("op=unstructured.ExtractChunks form: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("op=unstructured.ExtractChunks form: %w", err)
	}
	for k, v := range formFields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("op=unstructured.ExtractChunks form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("op=unstructured.ExtractChunks form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/general/v0/general", &buf)
	if err != nil {
		return nil, fmt.Errorf("op=unstructured.ExtractChunks request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=unstructured.ExtractChunks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("op=unstructured.ExtractChunks status %d: %s", resp.StatusCode, snippet)
	}

	var elements []element
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return nil, fmt.Errorf("op=unstructured.ExtractChunks decode: %w", err)
	}

	chunks := make([]string, 0, len(elements))
	for _, el := range elements {
		text := textx.SanitizeText(el.Text)
		if text == "" {
			continue
		}
		chunks = append(chunks, text)
	}
	return chunks, nil
}
