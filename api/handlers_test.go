package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kecantiere/config"
	"kecantiere/db"
	"kecantiere/filestore"
	"kecantiere/models"
	"kecantiere/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type testEnv struct {
	router *gin.Engine
	store  *db.Store
	docs   *filestore.Store
	cfg    *config.Config
	token  string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tempDir := t.TempDir()
	cfg := &config.Config{
		DataFilePath:  filepath.Join(tempDir, "data.json"),
		UsersFilePath: filepath.Join(tempDir, "users.json"),
		UploadsDir:    filepath.Join(tempDir, "uploads"),
		PublicDir:     filepath.Join(tempDir, "public"),
		EnableBackup:  false,
		JwtSecret:     "test-secret",
		TokenLifetime: time.Hour,
	}

	seeds := []models.Account{
		{Username: "admin", Password: utils.LegacyDigest("admin123"), Role: "admin"},
		{Username: "cantiere", Password: utils.LegacyDigest("cantiere"), Role: "user"},
	}
	store := db.NewStore(cfg, seeds)
	docs := filestore.NewStore(cfg.UploadsDir)
	router := SetupRouter(store, docs, cfg)

	env := &testEnv{router: router, store: store, docs: docs, cfg: cfg}
	env.token = env.login(t, "admin", "admin123")
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username": %q, "password": %q}`, username, password)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, "login failed: %s", w.Body.String())
	return gjson.Get(w.Body.String(), "token").String()
}

// do performs an authenticated JSON request against the test router.
func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// --- Auth ---

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username": "admin", "password": "sbagliata"}`))
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/login",
			strings.NewReader(`{"username": "nessuno", "password": "x"}`))
		env.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("digest instead of password", func(t *testing.T) {
		// Legacy clients submit the digest they computed locally.
		token := env.login(t, "cantiere", utils.LegacyDigest("cantiere"))
		assert.NotEmpty(t, token)
	})
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := setupTestEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Whole document ---

func TestDataRoundTrip(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/data", map[string]any{
		"operai": []map[string]any{{"id": "w1", "nome": "Mario"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/data", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "Mario", gjson.Get(body, "operai.0.nome").String())
	assert.True(t, gjson.Get(body, "diari").IsArray(), "missing collections come back as empty arrays")
}

func TestReplaceData_RejectsUnanchoredPayload(t *testing.T) {
	env := setupTestEnv(t)

	for name, payload := range map[string]string{
		"empty object":  `{}`,
		"invalid json":  `{"operai": [`,
		"wrong anchors": `{"diari": [], "segnalazioni": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/data", strings.NewReader(payload))
			req.Header.Set("Authorization", "Bearer "+env.token)
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

// --- Users ---

func TestUsersRoutes(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", gjson.Get(w.Body.String(), "0.username").String())

	w = env.do(http.MethodPost, "/api/users", []models.Account{
		{Username: "geometra", Password: "digest", Role: "admin"},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/users", []models.Account{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Workers ---

func TestWorkerCRUD(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/operai", models.Record{"nome": "Mario", "ruolo": "capo"})
	require.Equal(t, http.StatusOK, w.Code)
	id := gjson.Get(w.Body.String(), "id").String()
	assert.Regexp(t, `^w[0-9a-f]{8}$`, id)

	w = env.do(http.MethodPut, "/api/operai/"+id, models.Record{"ruolo": "geometra"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Mario", gjson.Get(w.Body.String(), "nome").String())
	assert.Equal(t, "geometra", gjson.Get(w.Body.String(), "ruolo").String())

	w = env.do(http.MethodPut, "/api/operai/winesistente", models.Record{"nome": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/operai/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/operai", nil)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestWorkerDelete_CascadesAttendanceNotDocuments(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/operai", models.Record{"nome": "Mario"})
	require.Equal(t, http.StatusOK, w.Code)
	id := gjson.Get(w.Body.String(), "id").String()

	w = env.do(http.MethodPost, "/api/giornate", map[string]any{
		"data": "2024-05-06", "cantiere": "c1",
		"presenze": []map[string]any{{"operaio": id}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.docs.Store(id, "contratto.pdf", []byte("%PDF"), "application/pdf")
	require.NoError(t, err)

	w = env.do(http.MethodDelete, "/api/operai/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/giornate", nil)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	// Documents survive; cleanup is a separate, explicit call.
	docs, err := env.docs.List(id)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	w = env.do(http.MethodDelete, "/api/operai/"+id+"/documenti", nil)
	require.Equal(t, http.StatusOK, w.Code)
	docs, err = env.docs.List(id)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// --- Attendance ---

func TestAttendanceBatchReplace(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/giornate", map[string]any{
		"data": "2024-05-06", "cantiere": "c1",
		"presenze": []map[string]any{{"operaio": "w1"}, {"operaio": "w2"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "count").Int())

	w = env.do(http.MethodPost, "/api/giornate", map[string]any{
		"data": "2024-05-06", "cantiere": "c1",
		"presenze": []map[string]any{{"operaio": "w3", "presente": false}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/giornate?data=2024-05-06&cantiere=c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Equal(t, int64(1), gjson.Get(body, "#").Int(), "resubmission replaces the pair's records")
	assert.Equal(t, "w3", gjson.Get(body, "0.operaio").String())
	assert.False(t, gjson.Get(body, "0.presente").Bool())
	assert.Equal(t, int64(8), gjson.Get(body, "0.ore").Int())
}

func TestAttendanceBatch_MissingFields(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/giornate", map[string]any{"cantiere": "c1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Diary ---

func TestDiaryRoutes_RedactPhotosInList(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/diari", models.Record{
		"cantiere": "c1",
		"testo":    "getto fondazioni",
		"foto":     []string{"data:image/jpeg;base64,AAAA", "data:image/jpeg;base64,BBBB"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	id := gjson.Get(w.Body.String(), "id").String()
	assert.Regexp(t, `^d\d+$`, id)

	w = env.do(http.MethodGet, "/api/diari?cantiere=c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Equal(t, int64(2), gjson.Get(body, "0.foto.#").Int())
	assert.Equal(t, "[foto]", gjson.Get(body, "0.foto.0").String())

	// The single-entry view keeps the real photos.
	w = env.do(http.MethodGet, "/api/diari/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, gjson.Get(w.Body.String(), "foto.0").String(), "base64")

	w = env.do(http.MethodGet, "/api/diari/dinesistente", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/diari/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Issue reports ---

func TestSegnalazioniRoutes(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodPost, "/api/segnalazioni", models.Record{"testo": "ponteggio instabile"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "aperta").Bool(), "new reports default to open")
	id := gjson.Get(w.Body.String(), "id").String()

	w = env.do(http.MethodDelete, "/api/segnalazioni/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Documents ---

func (e *testEnv) upload(t *testing.T, workerID, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/operai/"+workerID+"/documenti", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestDocumentWorkflow(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(http.MethodGet, "/api/operai/w1/documenti", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = env.upload(t, "w1", "contratto.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	physical := gjson.Get(w.Body.String(), "nome").String()
	assert.Regexp(t, `^\d+_contratto\.pdf$`, physical)

	// Stored bytes come back untouched through the static route.
	req := httptest.NewRequest(http.MethodGet, "/uploads/documenti/w1/"+physical, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4", rec.Body.String())

	w = env.do(http.MethodPut, "/api/operai/w1/documenti/"+physical, map[string]string{"nome": "contratto 2024.pdf"})
	require.Equal(t, http.StatusOK, w.Code)
	renamed := gjson.Get(w.Body.String(), "nome").String()
	assert.Equal(t, strings.SplitN(physical, "_", 2)[0], strings.SplitN(renamed, "_", 2)[0],
		"rename keeps the upload timestamp prefix")

	w = env.do(http.MethodDelete, "/api/operai/w1/documenti/"+url.PathEscape(renamed), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, "/api/operai/w1/documenti/"+url.PathEscape(renamed), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentUpload_Validation(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("disallowed type", func(t *testing.T) {
		w := env.upload(t, "w1", "script.sh", "application/x-sh", []byte("#!/bin/sh"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("traversal filename is sanitized", func(t *testing.T) {
		w := env.upload(t, "w1", "../../etc/passwd", "application/pdf", []byte("x"))
		require.Equal(t, http.StatusOK, w.Code)
		nome := gjson.Get(w.Body.String(), "nome").String()
		assert.NotContains(t, nome, "/")
	})

	t.Run("missing file field", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/operai/w1/documenti", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
