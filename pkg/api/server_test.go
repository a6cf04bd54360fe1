package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdxmph/imgdedup/internal/testimage"
	"github.com/pdxmph/imgdedup/pkg/auth"
	"github.com/pdxmph/imgdedup/pkg/batch"
	"github.com/pdxmph/imgdedup/pkg/types"
	"github.com/pdxmph/imgdedup/pkg/upload"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingUploader struct {
	who   auth.Identity
	items []batch.Item
	err   error
}

func (r *recordingUploader) Run(_ context.Context, who auth.Identity, items []batch.Item) (*types.UploadResponse, error) {
	r.who = who
	r.items = items
	if r.err != nil {
		return nil, r.err
	}
	return &types.UploadResponse{BatchID: "b1", SavedFiles: []string{items[0].Name}, User: who.Label()}, nil
}

func multipartBody(t *testing.T, field string, files map[string]string, order ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func uploadRequest(t *testing.T, token string, names ...string) *http.Request {
	files := make(map[string]string)
	for _, n := range names {
		files[n] = "content of " + n
	}
	body, ctype := multipartBody(t, FormField, files, names...)
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", ctype)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRoot(t *testing.T) {
	s := NewServer(&recordingUploader{}, nil, 0, zerolog.Nop())
	w := httptest.NewRecorder()
	s.SetupRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var msg types.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, Banner, msg.Message)
}

func TestFaviconAndHealth(t *testing.T) {
	r := NewServer(&recordingUploader{}, nil, 0, zerolog.Nop()).SetupRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestUploadPassesItemsInOrder(t *testing.T) {
	up := &recordingUploader{}
	r := NewServer(up, nil, 0, zerolog.Nop()).SetupRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "", "b.png", "a.txt", "b.png"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, up.items, 3)
	assert.Equal(t, "b.png", up.items[0].Name)
	assert.Equal(t, "a.txt", up.items[1].Name)
	assert.Equal(t, []byte("content of a.txt"), up.items[1].Data)
	assert.Equal(t, "anonymous", up.who.UID)

	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "b1", resp.BatchID)
	assert.Equal(t, []string{"b.png"}, resp.SavedFiles)
}

func TestUploadRequiresToken(t *testing.T) {
	provider := auth.NewStatic(map[string]auth.Identity{"s3cret": {UID: "u1", Email: "u1@example.com"}})
	up := &recordingUploader{}
	r := NewServer(up, provider, 0, zerolog.Nop()).SetupRouter()

	for _, token := range []string{"", "wrong"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, uploadRequest(t, token, "a.txt"))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Contains(t, w.Body.String(), "Invalid authentication credentials")
	}
	assert.Nil(t, up.items)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "s3cret", "a.txt"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", up.who.UID)
	assert.Contains(t, w.Body.String(), `"user":"u1@example.com"`)
}

func TestUploadWithoutFiles(t *testing.T) {
	r := NewServer(&recordingUploader{}, nil, 0, zerolog.Nop()).SetupRouter()

	body, ctype := multipartBody(t, "other", map[string]string{"a.txt": "x"}, "a.txt")
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/upload/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	up := &recordingUploader{}
	r := NewServer(up, nil, 64, zerolog.Nop()).SetupRouter()

	files := map[string]string{"big.txt": strings.Repeat("x", 4096)}
	body, ctype := multipartBody(t, FormField, files, "big.txt")
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.GreaterOrEqual(t, w.Code, 400)
	assert.Nil(t, up.items)
}

func TestUploadServiceError(t *testing.T) {
	r := NewServer(&recordingUploader{err: errors.New("db gone")}, nil, 0, zerolog.Nop()).SetupRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, "", "a.txt"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db gone")
}

func TestUploadEndToEnd(t *testing.T) {
	svc := upload.New(batch.New())
	r := NewServer(svc, nil, 0, zerolog.Nop()).SetupRouter()

	png := string(testimage.PNG(testimage.Smooth(3, 48, 48)))
	files := map[string]string{"a.txt": "same", "b.txt": "same", "c.exe": "MZ", "d.png": png}
	body, ctype := multipartBody(t, FormField, files, "a.txt", "b.txt", "c.exe", "d.png")
	req := httptest.NewRequest(http.MethodPost, "/upload/", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"a.txt", "d.png"}, resp.SavedFiles)
	assert.Equal(t, []string{"b.txt"}, resp.DeletedDuplicates)
	require.Len(t, resp.SkippedFiles, 1)
	assert.Equal(t, "unsupported", resp.SkippedFiles[0].Reason)
	assert.Equal(t, "anonymous", resp.User)
	assert.Contains(t, w.Body.String(), `"mime":"image/png"`)
	require.Len(t, resp.Decisions, 4)
	assert.Equal(t, "image/png", resp.Decisions[3].MIME)
}
