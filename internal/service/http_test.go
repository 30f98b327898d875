package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pys-backend/internal/catalog"
	"pys-backend/internal/pull"
	"pys-backend/internal/taxonomy"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, handler http.Handler, method, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestHttpIndexAndLatest(t *testing.T) {
	f := newFixture(t)
	handler := f.svc.Handler()

	rec := do(t, handler, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	index := decode[indexBody](t, rec)
	require.NotEmpty(t, index.Message)
	require.True(t, time.Time(clock).Equal(index.Timestamp))

	rec = do(t, handler, http.MethodGet, "/show_latest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	tree := decode[taxonomy.Tree](t, rec)
	require.Equal(t, 5, tree.Stats().Classes)

	rec = do(t, handler, http.MethodGet, "/show_latest.xml")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/xml"))
	fromXML, err := taxonomy.FromXML(rec.Body.Bytes())
	require.NoError(t, err)
	require.Equal(t, tree.Stats(), fromXML.Stats())
	require.Equal(t, tree[0].Segments[0].Families[0].Classes, fromXML[0].Segments[0].Families[0].Classes)

	rec = do(t, handler, http.MethodGet, "/does-not-exist")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHttpPullTrigger(t *testing.T) {
	f := newFixture(t)
	handler := f.svc.Handler()

	rec := do(t, handler, http.MethodPost, "/pull")
	require.Equal(t, http.StatusOK, rec.Code)
	refused := decode[PullTrigger](t, rec)
	require.False(t, refused.Started)
	require.Equal(t, pull.ReasonFresh, refused.Reason)

	rec = do(t, handler, http.MethodGet, "/pull")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, handler, http.MethodPost, "/pull?forced=true")
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decode[PullTrigger](t, rec)
	require.True(t, started.Started)
	id := uuid.MustParse(started.ID)

	require.Eventually(t, func() bool {
		last, ok := f.coordinator.LastResult(context.Background())
		return ok && last.ID == id
	}, time.Second*30, time.Millisecond*20)

	rec = do(t, handler, http.MethodGet, "/pull/status")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[PullStatus](t, rec)
	require.NotNil(t, status.Last)
	require.Equal(t, id, status.Last.ID)
	require.Equal(t, pull.StatusSucceeded, status.Last.Status)
	require.True(t, status.Last.Forced)
}

func TestHttpClassifications(t *testing.T) {
	f := newFixture(t)
	handler := f.svc.Handler()

	rec := do(t, handler, http.MethodGet, "/classifications/search?q=granja&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[[]ClassificationMatch](t, rec)
	require.NotEmpty(t, matches)

	rec = do(t, handler, http.MethodGet, "/classifications/search?q=")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, decode[errorBody](t, rec).Error)

	rec = do(t, handler, http.MethodGet, "/classifications/search?q=granja&limit=muchos")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/classifications/hierarchy?tipo=1&div=11")
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[taxonomy.Tree](t, rec)
	require.Equal(t, taxonomy.Stats{Types: 1, Segments: 1, Families: 1, Classes: 1}, tree.Stats())

	rec = do(t, handler, http.MethodGet, "/classifications/hierarchy?div=11")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/classifications/101015")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[ClassificationDetail](t, rec)
	require.Equal(t, "Animales de granja", detail.Clase)
	require.Len(t, detail.Products, 2)

	rec = do(t, handler, http.MethodGet, "/classifications/999999")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodGet, "/classifications/granja")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHttpProducts(t *testing.T) {
	f := newFixture(t)
	handler := f.svc.Handler()

	rec := do(t, handler, http.MethodGet, "/products/search?q=1010")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]Product](t, rec), 2)

	rec = do(t, handler, http.MethodGet, "/products/10101500")
	require.Equal(t, http.StatusOK, rec.Code)
	product := decode[ProductDetail](t, rec)
	require.Equal(t, "Ganado vacuno", product.Description)
	require.Equal(t, "Animales de granja", product.Classification.Clase)

	rec = do(t, handler, http.MethodGet, "/products/2")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHttpCatalogRefresh(t *testing.T) {
	f := newFixture(t)
	rec := do(t, f.svc.Handler(), http.MethodPost, "/catalog/refresh")
	require.Equal(t, http.StatusNotImplemented, rec.Code)

	fake := &fakeCatalog{result: catalog.Result{DateKey: "20240301", Products: 4}}
	f = newFixture(t, WithCatalog(fake))
	rec = do(t, f.svc.Handler(), http.MethodPost, "/catalog/refresh?forced=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "20240301", decode[catalog.Result](t, rec).DateKey)
	require.Equal(t, []bool{true}, fake.forced)

	fake.err = catalog.ErrBusy
	rec = do(t, f.svc.Handler(), http.MethodPost, "/catalog/refresh")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHttpCors(t *testing.T) {
	f := newFixture(t)

	rec := do(t, f.svc.Handler(), http.MethodGet, "/pull/status", "Origin", "http://localhost:5173")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	f = newFixture(t, WithAllowedOrigins("https://pys.example.com"))
	rec = do(t, f.svc.Handler(), http.MethodGet, "/pull/status", "Origin", "http://localhost:5173")
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	rec = do(t, f.svc.Handler(), http.MethodGet, "/pull/status", "Origin", "https://pys.example.com")
	require.Equal(t, "https://pys.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
