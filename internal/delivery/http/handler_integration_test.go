package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foodlens/backend/config"
	"github.com/foodlens/backend/internal/domain"
	"github.com/foodlens/backend/internal/infrastructure/sqlite"
	"github.com/foodlens/backend/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"chrome-extension://*", "http://localhost:3000"},
		},
		Cache: config.CacheConfig{Type: "memory"},
	}
}

// stubResolver returns a fixed result or error and records the last request
type stubResolver struct {
	res  *domain.Resolution
	err  error
	last domain.ResolveRequest
}

func (s *stubResolver) Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.Resolution, error) {
	s.last = req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.res, s.err
}

// setupTestRouter creates a test router around resolver
func setupTestRouter(resolver FoodResolver) *gin.Engine {
	return SetupRouter(testConfig(), NewHandler(resolver, nil), nil)
}

func resolveRequest(body string, userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/foods/resolve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter(nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "foodlens-backend", body["service"])
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter(nil)

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(method, "/health", nil))
			assert.Equal(t, http.StatusNotFound, w.Code, method)
		}
	})
}

func TestResolveEndpoint(t *testing.T) {
	catalogHit := &domain.Resolution{
		FoodID:       "D101",
		DisplayName:  "soup_beansprout",
		Source:       domain.SourceCatalog,
		Score:        80,
		MatchedRules: []string{usecase.RuleCompoundHead},
		Stage:        usecase.StageCatalogFallback,
		Nutrients:    domain.Nutrients{Kcal: 35},
	}

	t.Run("returns the resolved food", func(t *testing.T) {
		resolver := &stubResolver{res: catalogHit}
		w := httptest.NewRecorder()
		setupTestRouter(resolver).ServeHTTP(w, resolveRequest(`{"foodName":"soup","ingredients":["콩나물"],"categoryHint":"국"}`, "42"))

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "D101", body["foodId"])
		assert.Equal(t, "catalog", body["source"])
		assert.Equal(t, false, body["created"])
		assert.Equal(t, float64(80), body["score"])
		assert.Equal(t, float64(35), body["nutrients"].(map[string]any)["kcal"])

		assert.Equal(t, int64(42), resolver.last.OwnerUserID)
		assert.Equal(t, []string{"콩나물"}, resolver.last.Ingredients)
		assert.Equal(t, "국", resolver.last.CategoryHint)
	})

	t.Run("created food answers 201", func(t *testing.T) {
		resolver := &stubResolver{res: &domain.Resolution{
			FoodID:      "USER_42_1_x",
			Source:      domain.SourceNew,
			Stage:       usecase.StageCreate,
			Contributed: &domain.ContributedFood{UsageCount: 1},
		}}
		w := httptest.NewRecorder()
		setupTestRouter(resolver).ServeHTTP(w, resolveRequest(`{"foodName":"엄마표 김치찌개"}`, "42"))

		assert.Equal(t, http.StatusCreated, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["created"])
		assert.Equal(t, float64(1), body["usageCount"])
		assert.Equal(t, []any{}, body["matchedRules"])
	})

	t.Run("rejects missing or bad user id", func(t *testing.T) {
		for _, id := range []string{"", "abc", "0", "-3"} {
			w := httptest.NewRecorder()
			setupTestRouter(&stubResolver{res: catalogHit}).ServeHTTP(w, resolveRequest(`{"foodName":"soup"}`, id))
			assert.Equal(t, http.StatusBadRequest, w.Code, "user id %q", id)
			assert.Equal(t, "invalid_user", decode(t, w)["error"])
		}
	})

	t.Run("rejects malformed or missing food name", func(t *testing.T) {
		for _, payload := range []string{`{`, `{}`, `{"foodName":""}`} {
			w := httptest.NewRecorder()
			setupTestRouter(&stubResolver{res: catalogHit}).ServeHTTP(w, resolveRequest(payload, "1"))
			assert.Equal(t, http.StatusBadRequest, w.Code, payload)
		}
	})

	t.Run("blank food name is invalid input", func(t *testing.T) {
		w := httptest.NewRecorder()
		setupTestRouter(&stubResolver{res: catalogHit}).ServeHTTP(w, resolveRequest(`{"foodName":"   "}`, "1"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", decode(t, w)["error"])
	})

	t.Run("storage conflict is retryable", func(t *testing.T) {
		w := httptest.NewRecorder()
		setupTestRouter(&stubResolver{err: domain.ErrStorageConflict}).ServeHTTP(w, resolveRequest(`{"foodName":"soup"}`, "1"))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, true, decode(t, w)["retryable"])
	})

	t.Run("other errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := fmt.Errorf("catalog search: %w", errors.New("disk I/O error"))
		setupTestRouter(&stubResolver{err: err}).ServeHTTP(w, resolveRequest(`{"foodName":"soup"}`, "1"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["retryable"])
		assert.NotContains(t, w.Body.String(), "disk I/O")
		assert.NotEmpty(t, body["requestId"])
	})

	t.Run("not configured", func(t *testing.T) {
		w := httptest.NewRecorder()
		setupTestRouter(nil).ServeHTTP(w, resolveRequest(`{"foodName":"soup"}`, "1"))
		assert.Equal(t, http.StatusNotImplemented, w.Code)
		assert.Contains(t, decode(t, w)["message"], "not configured")
	})

	t.Run("requires correct path and method", func(t *testing.T) {
		router := setupTestRouter(&stubResolver{res: catalogHit})
		for _, path := range []string{"/api/v1/foods", "/api/foods/resolve", "/foods/resolve"} {
			w := httptest.NewRecorder()
			req := resolveRequest(`{"foodName":"soup"}`, "1")
			req.URL.Path = path
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusNotFound, w.Code, path)
		}

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/foods/resolve", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// TestResolveEndToEnd runs the real engine over a temporary SQLite database
func TestResolveEndToEnd(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "foods.db"))
	require.NoError(t, err)
	defer db.Close()

	catalog := sqlite.NewCatalogStore(db, nil)
	_, err = catalog.Upsert(context.Background(), []domain.FoodRecord{
		{FoodID: "D104", DisplayName: "찌개_김치", Category1: "찌개류", Category2: "김치", RepresentativeName: "김치 찌개"},
	})
	require.NoError(t, err)

	svc := usecase.NewResolutionService(catalog, sqlite.NewContributedStore(db), nil, nil, usecase.ResolutionConfig{}, nil)
	router := setupTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, resolveRequest(`{"foodName":"김치 찌개"}`, "1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "D104", decode(t, w)["foodId"])

	payload := `{"foodName":"할머니 잡채","ingredients":["당면"],"nutrients":{"kcal":420}}`
	w = httptest.NewRecorder()
	router.ServeHTTP(w, resolveRequest(payload, "1"))
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	assert.True(t, strings.HasPrefix(created["foodId"].(string), "USER_1_"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, resolveRequest(payload, "1"))
	require.Equal(t, http.StatusOK, w.Code)
	again := decode(t, w)
	assert.Equal(t, created["foodId"], again["foodId"])
	assert.Equal(t, "contributed", again["source"])
	assert.Equal(t, float64(2), again["usageCount"])
	assert.Equal(t, float64(420), again["nutrients"].(map[string]any)["kcal"])
}

func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for Chrome extension", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "chrome-extension://abcdefghijklmnop")
		w := httptest.NewRecorder()
		setupTestRouter(nil).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "chrome-extension://abcdefghijklmnop", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("resolve endpoint has CORS for localhost", func(t *testing.T) {
		req := resolveRequest(`{"foodName":"soup"}`, "1")
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		setupTestRouter(nil).ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	router := setupTestRouter(nil)
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal", decode(t, w)["error"])
}

func TestJSONResponses(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"POST", "/api/v1/foods/resolve"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			req := httptest.NewRequest(endpoint.method, endpoint.path, nil)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			setupTestRouter(nil).ServeHTTP(w, req)

			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			decode(t, w)
		})
	}
}
