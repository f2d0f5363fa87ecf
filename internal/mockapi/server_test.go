package mockapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleanup/dashboard/internal/core/catalog"
)

const seed = `{
  "users": [
    {"id": 1, "email": "admin@kleanup.test", "password": "secret", "is_admin": true},
    {"id": 2, "email": "staff@kleanup.test", "password": "secret", "is_admin": false}
  ],
  "payments": [
    {"id": 5, "status": "Paid", "amount": 1200}
  ]
}`

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	cat, err := catalog.Load("")
	require.NoError(t, err)

	store := NewStore()
	require.NoError(t, store.Seed(strings.NewReader(seed)))

	srv := New(store, cat, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_CRUD(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, created := doJSON(t, http.MethodPost, ts.URL+"/faqs", "", map[string]any{"title": "How?", "content": "Like this"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, ok := created["id"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, created["created_at"])

	resp, updated := doJSON(t, http.MethodPatch, ts.URL+"/faqs/"+id, "", map[string]any{"title": "Why?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Why?", updated["title"])
	assert.Equal(t, "Like this", updated["content"], "patch keeps absent fields")

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/faqs/"+id, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body := doJSON(t, http.MethodDelete, ts.URL+"/faqs/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Record not found", body["error"])
}

func TestServer_CustomPaths(t *testing.T) {
	srv, ts := newTestServer(t, Options{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/createAdmin", "", map[string]any{"email": "new@kleanup.test"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPatch, ts.URL+"/auth/users/admin/2", "", map[string]any{"is_admin": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_admin"])

	assert.Len(t, srv.Store().List("users"), 3)
}

func TestServer_EscapedRecordID(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/faqs", "", map[string]any{"id": "a/b?c", "title": "Odd", "content": "id"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	escaped := ts.URL + "/faqs/" + url.PathEscape("a/b?c")
	resp, body := doJSON(t, http.MethodGet, escaped, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Odd", body["title"])

	resp, _ = doJSON(t, http.MethodDelete, escaped, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServer_UniqueEmail(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/createAdmin", "", map[string]any{"email": "admin@kleanup.test"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Email already exists", body["error"])
}

func TestServer_MultipartCreate(t *testing.T) {
	srv, ts := newTestServer(t, Options{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("name", "Deep clean"))
	require.NoError(t, w.WriteField("price", "5000"))
	fw, err := w.CreateFormFile("image", "deep.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	resp, err := http.Post(ts.URL+"/service-categories", w.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rows := srv.Store().List("service_categories")
	require.Len(t, rows, 1)
	assert.Equal(t, "/uploads/deep.png", rows[0]["image"])
	assert.Equal(t, "5000", rows[0]["price"])
	assert.NotEmpty(t, rows[0]["_id"])
}

func TestServer_LoginAndCurrentUser(t *testing.T) {
	_, ts := newTestServer(t, Options{RequireAuth: true})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/payments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]any{"email": "admin@kleanup.test", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid email or password", body["error"])

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", map[string]any{"email": "admin@kleanup.test", "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/auth/user", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_admin"])
	assert.NotContains(t, body, "password")

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/payments", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Fail(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	srv.Fail(http.MethodDelete, "payments", http.StatusInternalServerError, "database unavailable")

	resp, body := doJSON(t, http.MethodDelete, ts.URL+"/payments/5", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "database unavailable", body["error"])
	assert.Len(t, srv.Store().List("payments"), 1)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/payments/5", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
