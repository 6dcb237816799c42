package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioregister/internal/logger"
	"studioregister/internal/model"
	"studioregister/internal/register"
	"studioregister/internal/store"
	"studioregister/internal/syncer"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lg := logger.New("test", "", logger.Error)
	local, err := store.OpenLocal(filepath.Join(t.TempDir(), "register.db"), lg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	sync := syncer.New(local, nil, nil, lg)
	reg := register.New(sync, nil, nil, lg, 2)
	h := New(sync, reg, lg)

	r := gin.New()
	h.Routes(r)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestClassLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/v1/classes", gin.H{"name": "Ballet A", "color": "#abc"})
	require.Equal(t, http.StatusCreated, w.Code)
	var cls model.DanceClass
	decodeInto(t, w, &cls)
	assert.NotEmpty(t, cls.ID)

	// Duplicate name conflicts.
	w = do(t, r, http.MethodPost, "/v1/classes", gin.H{"name": "ballet a"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Missing name fails binding.
	w = do(t, r, http.MethodPost, "/v1/classes", gin.H{"color": "#abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/v1/classes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var classes []model.DanceClass
	decodeInto(t, w, &classes)
	assert.Len(t, classes, 1)

	w = do(t, r, http.MethodDelete, "/v1/classes/"+cls.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Gone from the default listing, visible with include_deleted.
	w = do(t, r, http.MethodGet, "/v1/classes", nil)
	decodeInto(t, w, &classes)
	assert.Empty(t, classes)
	w = do(t, r, http.MethodGet, "/v1/classes?include_deleted=1", nil)
	decodeInto(t, w, &classes)
	assert.Len(t, classes, 1)

	w = do(t, r, http.MethodDelete, "/v1/classes/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegisterFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	var cls model.DanceClass
	decodeInto(t, do(t, r, http.MethodPost, "/v1/classes", gin.H{"name": "Ballet A"}), &cls)
	var ann model.Student
	decodeInto(t, do(t, r, http.MethodPost, "/v1/students", gin.H{"name": "Ann", "classId": cls.ID}), &ann)

	w := do(t, r, http.MethodPost, "/v1/sessions", gin.H{"classId": cls.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var sess model.RegisterSession
	decodeInto(t, w, &sess)

	// Second open register for the same class conflicts.
	w = do(t, r, http.MethodPost, "/v1/sessions", gin.H{"classId": cls.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/v1/sessions/"+sess.ID+"/marks", gin.H{"studentId": ann.ID, "mark": "PRESENT"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/v1/sessions/"+sess.ID+"/marks", gin.H{"studentId": ann.ID, "mark": "MAYBE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/v1/sessions/"+sess.ID+"/close", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res register.CloseResult
	decodeInto(t, w, &res)
	assert.False(t, res.Session.Open())
	assert.Len(t, res.Granted, 1)
	assert.NotEmpty(t, res.Unlocked)

	w = do(t, r, http.MethodPost, "/v1/sessions/"+sess.ID+"/close", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Attendance over the default window: 1 of 1.
	w = do(t, r, http.MethodGet, "/v1/students/"+ann.ID+"/attendance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum struct {
		Attended   int     `json:"attended"`
		Counted    int     `json:"counted"`
		Percentage float64 `json:"percentage"`
	}
	decodeInto(t, w, &sum)
	assert.Equal(t, 1, sum.Attended)
	assert.Equal(t, 100.0, sum.Percentage)
}

func TestEvaluateAndSyncEndpoints(t *testing.T) {
	r := newTestRouter(t)

	var cls model.DanceClass
	decodeInto(t, do(t, r, http.MethodPost, "/v1/classes", gin.H{"name": "Ballet A"}), &cls)

	w := do(t, r, http.MethodGet, "/v1/awards/evaluate/month?class_id="+cls.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/v1/awards/evaluate/month", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No remote configured: the poke reports that instead of failing.
	w = do(t, r, http.MethodPost, "/v1/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decodeInto(t, w, &body)
	assert.Equal(t, false, body["synced"])
}
