package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexreplay/recorder/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", "secret123")

	require.NotNil(t, c)
	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, "secret123", c.apiKey)
	assert.NotNil(t, c.httpClient)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	assert.Equal(t, "http://localhost:5000", c.baseURL)
}

func TestHealthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"server error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/healthcheck", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := New(server.URL, "").Healthcheck(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	err := New("http://127.0.0.1:1", "").Healthcheck(context.Background())
	assert.Error(t, err)
}

func writeTestFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestUpload_Success(t *testing.T) {
	form := map[string]string{}
	var fileContent []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UploadPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		require.NoError(t, r.ParseMultipartForm(10<<20))
		for _, k := range []string{"secret", "filename", "score", "finalStage", "frames", "duration"} {
			form[k] = r.FormValue(k)
		}

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		fileContent, _ = io.ReadAll(file)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"rep-17"}`)
	}))
	defer server.Close()

	path := writeTestFile(t, "run_20260301.json.gz", []byte("test content"))
	c := New(server.URL, "mysecret")

	res, err := c.Upload(context.Background(), path, core.UploadMetadata{Score: 1200, FinalStage: 3, Frames: 900, Duration: 30.5})
	require.NoError(t, err)
	assert.Equal(t, "rep-17", res.ID)

	assert.Equal(t, map[string]string{
		"secret":     "mysecret",
		"filename":   "run_20260301.json.gz",
		"score":      "1200",
		"finalStage": "3",
		"frames":     "900",
		"duration":   "30.500",
	}, form)
	assert.Equal(t, "test content", string(fileContent))
}

func TestUpload_EmptyResponseBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	res, err := New(server.URL, "").Upload(context.Background(), writeTestFile(t, "a.json", []byte("{}")), core.UploadMetadata{})
	require.NoError(t, err)
	assert.Empty(t, res.ID)
}

func TestUpload_FileNotFound(t *testing.T) {
	_, err := New("http://localhost:5000", "secret").Upload(context.Background(), "/nonexistent/file.json.gz", core.UploadMetadata{})
	assert.Error(t, err)
}

func TestUpload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := New(server.URL, "wrong-secret").Upload(context.Background(), writeTestFile(t, "a.json", []byte("x")), core.UploadMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestUpload_ServerDown(t *testing.T) {
	_, err := New("http://127.0.0.1:1", "").Upload(context.Background(), writeTestFile(t, "a.json", []byte("x")), core.UploadMetadata{})
	assert.Error(t, err)
}
