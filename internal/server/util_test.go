package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeBase(t *testing.T) {
	for in, want := range map[string]string{
		"":       "",
		"/":      "",
		"api":    "/api",
		"/api":   "/api",
		"/api/":  "/api",
		" api ":  "/api",
		"/v1/mn": "/v1/mn",
	} {
		assert.Equal(t, want, sanitizeBase(in), "input %q", in)
	}
}

func TestIsSafeName(t *testing.T) {
	for _, s := range []string{"miner", "xmrig-6.21", "rig_01", "A.b"} {
		assert.True(t, isSafeName(s), s)
	}
	for _, s := range []string{"", "..", "a..b", "a/b", `a\b`, "rig 1", "hello*", "채굴"} {
		assert.False(t, isSafeName(s), s)
	}
}

func TestIsSafeAbsPath(t *testing.T) {
	sep := string(filepath.Separator)
	dir := t.TempDir()
	assert.True(t, isSafeAbsPath(""))
	assert.True(t, isSafeAbsPath(dir))
	assert.True(t, isSafeAbsPath(dir+sep))
	assert.False(t, isSafeAbsPath("bin/xmrig"))
	assert.False(t, isSafeAbsPath(sep+"opt"+sep+".."+sep+"etc"))
}

func TestQueryInt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	parse := func(target string) (int, bool) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, target, nil)
		return queryInt(c, "n", 7)
	}
	n, ok := parse("/logs")
	assert.True(t, ok)
	assert.Equal(t, 7, n)
	n, ok = parse("/logs?n=3")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	_, ok = parse("/logs?n=-1")
	assert.False(t, ok)
	_, ok = parse("/logs?n=x")
	assert.False(t, ok)
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) { writeJSON(c, http.StatusCreated, map[string]any{"a": 1}) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"a":1}`, rec.Body.String())
}
