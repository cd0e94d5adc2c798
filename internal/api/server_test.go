package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/img10/internal/config"
	"github.com/dharsanguruparan/img10/internal/lifecycle"
	"github.com/dharsanguruparan/img10/internal/model"
	"github.com/dharsanguruparan/img10/internal/repository"
	"github.com/dharsanguruparan/img10/internal/storage"
	"github.com/dharsanguruparan/img10/internal/thumbnail"
)

type testEnv struct {
	ts    *httptest.Server
	store *repository.MemoryStore
	blobs *storage.Disk
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	blobs, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	store := repository.NewMemoryStore()

	cfg := &config.Config{
		Address:             ":0",
		MaxUploadBytes:      maxUpload,
		UploadDir:           "uploads",
		ThumbnailDir:        "thumbnails",
		ExpiryWindow:        24 * time.Hour,
		UploadRatePerMinute: 10000,
		ServeRatePerMinute:  10000,
	}
	mgr := lifecycle.New(lifecycle.Config{
		ExpiryWindow:   cfg.ExpiryWindow,
		MaxUploadBytes: cfg.MaxUploadBytes,
		UploadDir:      cfg.UploadDir,
		ThumbnailDir:   cfg.ThumbnailDir,
	}, store, blobs, thumbnail.New(200, 200, 50), zap.NewNop())

	srv := New(cfg, mgr, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: store, blobs: blobs}
}

func multipartBody(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="test.img"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func smallJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestUploadAndServe(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	body, contentType := multipartBody(t, "image/jpeg", smallJPEG(t))
	resp, err := http.Post(env.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	up := decodeResponse[uploadResponse](t, resp)
	assert.True(t, up.Success)
	assert.NotEmpty(t, up.ImageID)
	assert.Equal(t, "image/jpeg", up.MIMEType)
	assert.Contains(t, up.ImgURL, up.ImageID+".jpg")
	assert.Contains(t, up.ThumbnailURL, "/t/"+up.ImageID+".jpg")

	orig, err := http.Get(up.ImgURL)
	require.NoError(t, err)
	defer orig.Body.Close()
	assert.Equal(t, http.StatusOK, orig.StatusCode)
	assert.Equal(t, "image/jpeg", orig.Header.Get("Content-Type"))
	assert.Equal(t, "inline", orig.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(orig.Body)
	require.NoError(t, err)
	assert.Equal(t, smallJPEG(t), data)

	thumb, err := http.Get(up.ThumbnailURL)
	require.NoError(t, err)
	defer thumb.Body.Close()
	assert.Equal(t, http.StatusOK, thumb.StatusCode)
	assert.Equal(t, "image/jpeg", thumb.Header.Get("Content-Type"))
	tdata, err := io.ReadAll(thumb.Body)
	require.NoError(t, err)
	timg, _, err := image.Decode(bytes.NewReader(tdata))
	require.NoError(t, err)
	assert.LessOrEqual(t, timg.Bounds().Dx(), 200)
}

func TestUploadRejectsWrongDeclaredType(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	body, contentType := multipartBody(t, "application/octet-stream", smallJPEG(t))
	resp, err := http.Post(env.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeResponse[errorResponse](t, resp)
	assert.Contains(t, errResp.Detail, "image files")
}

func TestUploadRejectsOversize(t *testing.T) {
	env := newTestEnv(t, 1<<20)

	body, contentType := multipartBody(t, "image/png", make([]byte, 2<<20))
	resp, err := http.Post(env.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	errResp := decodeResponse[errorResponse](t, resp)
	assert.Contains(t, errResp.Detail, "2.0 MiB")
}

func TestUploadRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	body, contentType := multipartBody(t, "image/png", []byte("renamed text file"))
	resp, err := http.Post(env.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeResponse[errorResponse](t, resp)
	assert.Contains(t, errResp.Detail, "unsupported image format")
}

func TestServeUnknownAndBadExtension(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp, err := http.Get(env.ts.URL + "/doesnotexist.jpg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(env.ts.URL + "/doesnotexist.tiff")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeExpiredIsNotFound(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	// Upload normally, then age the record past the window.
	body, contentType := multipartBody(t, "image/jpeg", smallJPEG(t))
	resp, err := http.Post(env.ts.URL+"/upload", contentType, body)
	require.NoError(t, err)
	up := decodeResponse[uploadResponse](t, resp)

	rec, err := env.store.Get(context.Background(), up.ImageID)
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(context.Background(), up.ImageID))
	rec.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
	require.NoError(t, env.store.Create(context.Background(), rec))

	got, err := http.Get(up.ImgURL)
	require.NoError(t, err)
	got.Body.Close()
	assert.Equal(t, http.StatusNotFound, got.StatusCode)
}

func TestCleanupEndpoint(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	require.NoError(t, env.store.Create(context.Background(), &model.ImageRecord{
		ID:            "expired1",
		MIMEType:      "image/jpeg",
		FilePath:      "uploads/expired1.jpg",
		ThumbnailPath: "thumbnails/expired1.jpg",
		CreatedAt:     time.Now().UTC().Add(-48 * time.Hour),
	}))

	resp, err := http.Get(env.ts.URL + "/tasks/cleanup")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse[cleanupResponse](t, resp)
	assert.Equal(t, 1, out.RemovedCount)
	assert.Equal(t, "Cleanup completed", out.Message)

	resp, err = http.Get(env.ts.URL + "/tasks/cleanup")
	require.NoError(t, err)
	out = decodeResponse[cleanupResponse](t, resp)
	assert.Zero(t, out.RemovedCount)
}

func TestHealthAndStats(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	health := decodeResponse[healthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.DatabaseConnected)
	assert.Equal(t, version, health.Version)

	resp, err = http.Get(env.ts.URL + "/stats")
	require.NoError(t, err)
	stats := decodeResponse[model.Stats](t, resp)
	assert.Zero(t, stats.TotalImages)
	assert.Nil(t, stats.OldestImage)
}

func TestLandingPage(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	resp, err := http.Get(env.ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(page), "img10")
	assert.Contains(t, string(page), "/upload")
	// Limits on the page come from configuration, not template literals.
	assert.Contains(t, string(page), "expire after 24 hours")
	assert.Contains(t, string(page), "up to 10 MiB")
}

func TestOperationalEndpointsRejectNonGET(t *testing.T) {
	env := newTestEnv(t, 10<<20)

	for _, path := range []string{"/health", "/stats", "/tasks/cleanup"} {
		resp, err := http.Post(env.ts.URL+path, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}
