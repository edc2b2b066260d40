package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/matheusnogalha/draft-os/internal/repository/mocks"
)

func newRateLimitRouter(repo *mocks.StateRepository, userID uint) *gin.Engine {
	r := gin.New()
	if userID != 0 {
		r.Use(func(c *gin.Context) { c.Set(ContextUserID, userID) })
	}
	r.Use(RateLimit(repo, 2, time.Second))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimit_Allows(t *testing.T) {
	repo := new(mocks.StateRepository)
	repo.On("CheckRateLimit", mock.Anything, "user:9", 2, time.Second).Return(false, nil).Once()

	w := httptest.NewRecorder()
	newRateLimitRouter(repo, 9).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	repo.AssertExpectations(t)
}

func TestRateLimit_ExceededByIP(t *testing.T) {
	repo := new(mocks.StateRepository)
	repo.On("CheckRateLimit", mock.Anything, "ip:192.0.2.1", 2, time.Second).Return(true, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	newRateLimitRouter(repo, 0).ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	repo.AssertExpectations(t)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	repo := new(mocks.StateRepository)
	repo.On("CheckRateLimit", mock.Anything, "user:9", 2, time.Second).Return(false, errors.New("redis down")).Once()

	w := httptest.NewRecorder()
	newRateLimitRouter(repo, 9).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_PanicsOnBadConfig(t *testing.T) {
	assert.Panics(t, func() { RateLimit(nil, 1, time.Second) })
	assert.Panics(t, func() { RateLimit(new(mocks.StateRepository), 0, time.Second) })
	assert.Panics(t, func() { RateLimit(new(mocks.StateRepository), 1, 0) })
}
