package unstructured

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExtractChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/general/v0/general", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		assert.Equal(t, "auto", r.FormValue("strategy"))
		assert.Equal(t, "by_title", r.FormValue("chunking_strategy"))
		assert.Equal(t, "500", r.FormValue("new_after_n_chars"))
		assert.Equal(t, "1000", r.FormValue("max_characters"))
		assert.Equal(t, "500", r.FormValue("combine_under_n_chars"))

		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		assert.Equal(t, "doc.txt", hdr.Filename)

		_, _ = w.Write([]byte(`[{"text":"first chunk"},{"text":""},{"text":"second\u0000 chunk"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	chunks, err := c.ExtractChunks(context.Background(), "doc.txt", writeTempFile(t, "body"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first chunk", "second chunk"}, chunks)
}

func TestExtractChunksServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ExtractChunks(context.Background(), "doc.txt", writeTempFile(t, "body"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestExtractChunksMissingFile(t *testing.T) {
	c := New("http://unused")
	_, err := c.ExtractChunks(context.Background(), "doc.txt", filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}
