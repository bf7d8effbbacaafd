package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abgdnv/storekeeper/internal/media"
	"github.com/abgdnv/storekeeper/internal/notify"
	"github.com/abgdnv/storekeeper/internal/service"
	"github.com/abgdnv/storekeeper/internal/store"
	"github.com/abgdnv/storekeeper/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

// newTestServer wires the real services over an in-memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mem := store.NewInMemoryStore()
	notifier := notify.NewNotifier(mem, discardLogger())
	root := t.TempDir()
	pipeline, err := media.NewPipeline(media.Config{
		Dir:        filepath.Join(root, "images"),
		StagingDir: filepath.Join(root, "staging"),
		MaxBytes:   1 << 20,
	}, discardLogger())
	require.NoError(t, err)

	mux := server.NewChiRouter(discardLogger())
	NewHandler(
		service.NewAuthService(mem),
		service.NewProductService(notifier, pipeline),
		pipeline,
		mem,
		discardLogger(),
	).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		notifier.Close()
		srv.Close()
	})
	return srv
}

func do(t *testing.T, method, url, contentType string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	return do(t, method, url, "application/json", strings.NewReader(body))
}

func TestFlow_StagedCaptureAttachedToProduct(t *testing.T) {
	srv := newTestServer(t)

	// given a staged capture the camera wrote into
	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/images/staging", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var staged stagingResponse
	require.NoError(t, json.Unmarshal(body, &staged))

	resp, _ = do(t, http.MethodPut, srv.URL+"/api/v1/images/staging/"+staged.Handle, "image/png", bytes.NewReader(pngBytes))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// when it is committed and attached
	resp, body = do(t, http.MethodPost, srv.URL+"/api/v1/images/staging/"+staged.Handle+"/commit", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var image imageResponse
	require.NoError(t, json.Unmarshal(body, &image))

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/v1/products",
		`{"name":"Widget","quantity":5,"price":9.99,"imageRef":"`+image.ImageRef+`"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created productResponse
	require.NoError(t, json.Unmarshal(body, &created))

	// then the photo can be served
	resp, body = do(t, http.MethodGet, srv.URL+image.URL, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, pngBytes, body)

	// and the staging handle is gone
	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/images/staging/"+staged.Handle+"/commit", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// and deleting the product leaves the photo in place
	resp, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/products/"+jsonID(created.ID), "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+image.URL, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFlow_CommitWithoutCaptureFails(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/images/staging", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var staged stagingResponse
	require.NoError(t, json.Unmarshal(body, &staged))

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/v1/images/staging/"+staged.Handle+"/commit", "", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestFlow_MultipartUpload(t *testing.T) {
	// given
	srv := newTestServer(t)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(uploadField, "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	// when
	resp, body := do(t, http.MethodPost, srv.URL+"/api/v1/images", mw.FormDataContentType(), &buf)

	// then
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var image imageResponse
	require.NoError(t, json.Unmarshal(body, &image))
	assert.True(t, strings.HasPrefix(image.ImageRef, media.Scheme))
}

func TestFlow_UploadRejectsNonImage(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/api/v1/images", "text/plain", strings.NewReader("hello"))

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestFlow_ProductWithUncommittedImageIsRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/products",
		`{"name":"Widget","quantity":1,"price":1,"imageRef":"file:///sdcard/x.jpg"}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"validation_errors":{"imageRef":"failed on rule: committed"}}`, string(body))
}

// readEvent returns the data line of the next server-sent event.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		data string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var data string
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				ch <- result{err: err}
				return
			}
			line = strings.TrimRight(line, "\n")
			if d, ok := strings.CutPrefix(line, "data: "); ok {
				data = d
			}
			if line == "" && data != "" {
				ch <- result{data: data}
				return
			}
		}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return ""
}

func TestFlow_StreamAllProducts(t *testing.T) {
	// given
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/products/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	events := bufio.NewReader(resp.Body)

	assert.JSONEq(t, `[]`, readEvent(t, events))

	// when
	createResp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", `{"name":"Widget","quantity":5,"price":9.99}`)
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	// then
	assert.JSONEq(t, `[{"id":1,"name":"Widget","quantity":5,"price":9.99,"imageRef":null}]`, readEvent(t, events))
}

func TestFlow_StreamProductEndsInNull(t *testing.T) {
	// given
	srv := newTestServer(t)
	createResp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/products", `{"name":"Widget","quantity":5,"price":9.99}`)
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/products/1/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	events := bufio.NewReader(resp.Body)
	assert.Contains(t, readEvent(t, events), `"name":"Widget"`)

	// when
	delResp, _ := do(t, http.MethodDelete, srv.URL+"/api/v1/products/1", "", nil)
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	// then
	assert.Equal(t, "null", readEvent(t, events))
}

func TestFlow_SignUpThenLogIn(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/signup", `{"name":"Amy","email":"a@x.com","password":"pw"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/signup", `{"name":"Amy2","email":"a@x.com","password":"pw2"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", `{"email":"a@x.com","password":"pw"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", `{"email":"a@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
