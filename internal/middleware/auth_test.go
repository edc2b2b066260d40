package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", Auth(testSecret), func(c *gin.Context) {
		exp, _ := c.Get(ContextTokenExp)
		c.JSON(http.StatusOK, gin.H{"user_id": c.MustGet(ContextUserID), "exp": exp})
	})
	return r
}

func TestAuth_ValidToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": 42, "exp": exp.Unix()})

	var gotExp time.Time
	r := gin.New()
	r.GET("/me", Auth(testSecret), func(c *gin.Context) {
		assert.Equal(t, uint(42), c.MustGet(ContextUserID))
		gotExp = c.MustGet(ContextTokenExp).(time.Time)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, gotExp.Equal(exp))
}

func TestAuth_QueryToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/me?token="+token, nil)
	w := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Rejections(t *testing.T) {
	expired := signToken(t, testSecret, jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(-time.Minute).Unix()})
	wrongSecret := signToken(t, "other", jwt.MapClaims{"user_id": 1, "exp": time.Now().Add(time.Hour).Unix()})
	noUser := signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	badUser := signToken(t, testSecret, jwt.MapClaims{"user_id": -3, "exp": time.Now().Add(time.Hour).Unix()})

	testCases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + wrongSecret},
		{"no user id", "Bearer " + noUser},
		{"negative user id", "Bearer " + badUser},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			newAuthRouter().ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAuth_RejectsNonHMAC(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 1})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	w := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_PanicsWithoutSecret(t *testing.T) {
	assert.Panics(t, func() { Auth("") })
}
