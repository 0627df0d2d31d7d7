package opencv

import (
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreKeepsLatestFrame(t *testing.T) {
	store := NewSnapshotStore(time.Minute)
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	store.EmitFrame("cam", []byte("one"), t0)
	store.EmitFrame("cam", []byte("two"), t0.Add(time.Second))

	snap, ok := store.Get("cam")
	require.True(t, ok)
	assert.Equal(t, []byte("two"), snap.ImageData)
	assert.Equal(t, uint64(2), snap.Frames)
	assert.False(t, store.Stale(snap, t0.Add(30*time.Second)))
	assert.True(t, store.Stale(snap, t0.Add(2*time.Minute)))

	store.Forget("cam")
	_, ok = store.Get("cam")
	assert.False(t, ok)
}

func TestSnapshotRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewSnapshotStore(time.Minute)
	store.EmitFrame("cam", []byte{0xff, 0xd8}, time.Now())

	router := gin.New()
	store.RegisterRoutes(router.Group("/api"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots/cam", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8}, w.Body.Bytes())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots/other", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestRectHelpers(t *testing.T) {
	assert.Equal(t, image.Rect(20, 40, 60, 80), ScaleRect(image.Rect(10, 20, 30, 40), 0.5))
	assert.Equal(t, image.Rect(5, 5, 25, 25), PadRect(image.Rect(10, 10, 20, 20), 0.5))
}
