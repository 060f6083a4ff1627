package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.SubmissionCreated("tiktok", false)
	m.SubmissionCreated("tiktok", true)
	m.SubmissionCreated("tiktok", true)
	m.ExtractionCall("submit", nil)
	m.ExtractionCall("submit", errors.New("boom"))
	m.PointsAwarded("recipe_saved", 20)
	m.PointsAwarded("recipe_saved", 0)
	m.RouletteSpin()
	m.ThumbnailMirror(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues("tiktok", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("tiktok", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.extractionRequests.WithLabelValues("submit", "error")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.pointsAwarded.WithLabelValues("recipe_saved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rouletteSpins))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.thumbnailMirrors.WithLabelValues("ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SubmissionCreated("youtube", false)
		m.ExtractionCall("status", nil)
		m.SubmissionFinished("completed")
		m.PollBatch(3)
		m.PointsAwarded("roulette_spin", 2)
		m.RouletteSpin()
		m.ThumbnailMirror(nil)
	})
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/recipes/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/recipes/abc", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/recipes/:id", "204")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reelkitchen_http_requests_total")
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
