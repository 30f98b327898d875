package satcatalog

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pys-backend/internal/components/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// catalogServer serves workbooks by date key and 404s everything else.
type catalogServer struct {
	mu    sync.Mutex
	files map[string][]byte
	paths []string
}

func (h *catalogServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.paths = append(h.paths, r.URL.Path)
	body, ok := h.files[r.URL.Path]
	h.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(body)
}

func (h *catalogServer) serve(dateKey string, body []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.files == nil {
		h.files = map[string][]byte{}
	}
	h.files["/catCFDI_V_4_"+dateKey+".xls"] = body
}

func (h *catalogServer) Paths() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.paths...)
}

func newTestClient(t *testing.T, srvUrl string, lookback int) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	return NewClient(ClientOptions{
		UrlTemplate:  srvUrl + "/catCFDI_V_4_{date}.xls",
		CacheDir:     dir,
		LookbackDays: lookback,
	}, &telemetry.Recorder{}), dir
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return body
}

var now = time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC)

var sampleProducts = []Product{
	{
		Code:        1010101,
		Description: "No existe en el catálogo",
		IncludeIVA:  "Opcional",
		IncludeIEPS: "Opcional",
		ValidFrom:   "2022-01-01",
	},
	{
		Code:           10101500,
		Description:    "Ganado vacuno",
		IncludeIVA:     "Sí",
		IncludeIEPS:    "No",
		ValidFrom:      "2022-01-01",
		BorderStimulus: "01",
		SimilarWords:   "Vacas toros",
	},
	{
		Code:        10101501,
		Description: "Gatos vivos",
		IncludeIVA:  "Sí",
		IncludeIEPS: "No",
		ValidFrom:   "2022-01-01",
		ValidTo:     "2024-12-31",
	},
}

func TestDecodeWorkbook(t *testing.T) {
	sheet, err := Decode(readFixture(t, "catCFDI_sample.xls"))
	require.NoError(t, err)
	require.Equal(t, 2, sheet.Skipped)
	if diff := cmp.Diff(sampleProducts, sheet.Products); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}

	_, err = Decode(readFixture(t, "catCFDI_without_products.xls"))
	require.ErrorContains(t, err, SheetName)

	_, err = Decode([]byte("<html>mantenimiento</html>"))
	require.Error(t, err)
}

func TestFetchLatestWalksBackNewestFirst(t *testing.T) {
	srv := &catalogServer{}
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client, _ := newTestClient(t, httpSrv.URL, 3)
	_, err := client.FetchLatest(context.Background(), now)
	require.ErrorIs(t, err, ErrNotFound)

	require.Equal(t, []string{
		"/catCFDI_V_4_20240302.xls",
		"/catCFDI_V_4_20240301.xls",
		"/catCFDI_V_4_20240229.xls",
	}, srv.Paths())
}

func TestFetchLatestDownloadsAndCaches(t *testing.T) {
	srv := &catalogServer{}
	srv.serve("20240301", readFixture(t, "catCFDI_sample.xls"))
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client, dir := newTestClient(t, httpSrv.URL, 5)
	catalog, err := client.FetchLatest(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, "20240301", catalog.DateKey)
	require.False(t, catalog.Cached)
	require.Equal(t, httpSrv.URL+"/catCFDI_V_4_20240301.xls", catalog.Url)
	if diff := cmp.Diff(sampleProducts, catalog.Products); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}

	cached, err := os.ReadFile(filepath.Join(dir, "catCFDI_V_4_20240301.xls"))
	require.NoError(t, err)
	require.Equal(t, readFixture(t, "catCFDI_sample.xls"), cached)

	// the second lookup is served from the cache
	requests := len(srv.Paths())
	catalog, err = client.FetchLatest(context.Background(), now)
	require.NoError(t, err)
	require.True(t, catalog.Cached)
	require.Equal(t, "20240301", catalog.DateKey)
	require.Len(t, srv.Paths(), requests+1)
}

func TestFetchLatestPrefersCache(t *testing.T) {
	srv := &catalogServer{}
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client, dir := newTestClient(t, httpSrv.URL, 10)
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "catCFDI_V_4_20240229.xls"),
		readFixture(t, "catCFDI_sample.xls"),
		0644,
	))

	catalog, err := client.FetchLatest(context.Background(), now)
	require.NoError(t, err)
	require.True(t, catalog.Cached)
	require.Equal(t, "20240229", catalog.DateKey)
	require.Len(t, catalog.Products, 3)

	// the cached day is never requested
	require.Equal(t, []string{
		"/catCFDI_V_4_20240302.xls",
		"/catCFDI_V_4_20240301.xls",
	}, srv.Paths())
}

func TestFetchLatestSkipsUndecodableDownloads(t *testing.T) {
	srv := &catalogServer{}
	srv.serve("20240302", []byte("<html>Sitio en mantenimiento</html>"))
	srv.serve("20240301", readFixture(t, "catCFDI_without_products.xls"))
	srv.serve("20240229", readFixture(t, "catCFDI_sample.xls"))
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client, dir := newTestClient(t, httpSrv.URL, 5)
	catalog, err := client.FetchLatest(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, "20240229", catalog.DateKey)

	for _, dateKey := range []string{"20240302", "20240301"} {
		_, err := os.Stat(filepath.Join(dir, "catCFDI_V_4_"+dateKey+".xls"))
		require.True(t, errors.Is(err, fs.ErrNotExist), dateKey)
	}
}

func TestFetchLatestReportsLastDecodeFailure(t *testing.T) {
	srv := &catalogServer{}
	srv.serve("20240301", []byte("truncated"))
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client, _ := newTestClient(t, httpSrv.URL, 3)
	_, err := client.FetchLatest(context.Background(), now)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorContains(t, err, "20240301")
}

func TestFetchLatestReplacesBrokenCache(t *testing.T) {
	srv := &catalogServer{}
	srv.serve("20240302", readFixture(t, "catCFDI_sample.xls"))
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client, dir := newTestClient(t, httpSrv.URL, 5)
	path := filepath.Join(dir, "catCFDI_V_4_20240302.xls")
	require.NoError(t, os.WriteFile(path, []byte("<html>error</html>"), 0644))

	catalog, err := client.FetchLatest(context.Background(), now)
	require.NoError(t, err)
	require.False(t, catalog.Cached)
	require.Equal(t, "20240302", catalog.DateKey)
	require.Equal(t, []string{"/catCFDI_V_4_20240302.xls"}, srv.Paths())

	cached, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, readFixture(t, "catCFDI_sample.xls"), cached)
}

func TestFetchLatestBrokenCacheWithoutUpstream(t *testing.T) {
	srv := &catalogServer{}
	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client, dir := newTestClient(t, httpSrv.URL, 2)
	path := filepath.Join(dir, "catCFDI_V_4_20240301.xls")
	require.NoError(t, os.WriteFile(path, []byte("<html>error</html>"), 0644))

	_, err := client.FetchLatest(context.Background(), now)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestDateKey(t *testing.T) {
	require.Equal(t, "20240302", DateKey(now))
}
