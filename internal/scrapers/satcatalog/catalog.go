// Package satcatalog downloads and decodes the published CFDI catalog
// workbook, of which only the product/service key sheet is read.
package satcatalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pys-backend/internal/components/assert"
	"pys-backend/internal/components/telemetry"

	"github.com/extrame/xls"
	"github.com/go-resty/resty/v2"
)

const (
	DefaultUrlTemplate  = "http://omawww.sat.gob.mx/tramitesyservicios/Paginas/documentos/catCFDI_V_4_{date}.xls"
	DefaultLookbackDays = 90

	dateKeyLayout = "20060102"
)

const (
	report_client_download = "client.download"
	report_client_cache    = "client.cache"
)

// ErrNotFound means no catalog was published inside the lookback window.
var ErrNotFound = errors.New("satcatalog: no catalog found in the lookback window")

type ClientOptions struct {
	// UrlTemplate contains a {date} placeholder replaced by YYYYMMDD.
	UrlTemplate  string
	CacheDir     string
	LookbackDays int
	Timeout      time.Duration
}

type Client struct {
	http *resty.Client
	opts ClientOptions
	tel  telemetry.API
}

// Catalog is a decoded catalog together with where it came from.
type Catalog struct {
	DateKey string
	Url     string
	Path    string
	Cached  bool
	Sheet
}

func NewClient(opts ClientOptions, tel telemetry.API) *Client {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("sat_catalog", tel)

	if opts.UrlTemplate == "" {
		opts.UrlTemplate = DefaultUrlTemplate
	}
	if opts.LookbackDays == 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if opts.CacheDir == "" {
		opts.CacheDir = filepath.Join(os.TempDir(), "pys-catalog")
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Minute * 2
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, tel)

	return &Client{
		http: client,
		opts: opts,
		tel:  tel,
	}
}

func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

func (c *Client) urlFor(dateKey string) string {
	return strings.ReplaceAll(c.opts.UrlTemplate, "{date}", dateKey)
}

func (c *Client) pathFor(dateKey string) string {
	return filepath.Join(c.opts.CacheDir, fmt.Sprintf("catCFDI_V_4_%s.xls", dateKey))
}

// FetchLatest walks back from now one day at a time and returns the first
// catalog that decodes, either from the cache or downloaded. Only decodable
// downloads are cached, a cached file that no longer decodes is dropped and
// fetched again.
func (c *Client) FetchLatest(ctx context.Context, now time.Time) (Catalog, error) {
	var lastErr error
	for days := 0; days < c.opts.LookbackDays; days++ {
		dateKey := DateKey(now.AddDate(0, 0, -days))
		url := c.urlFor(dateKey)
		path := c.pathFor(dateKey)

		sheet, ok := c.readCache(path)
		if ok {
			return Catalog{
				DateKey: dateKey,
				Url:     url,
				Path:    path,
				Cached:  true,
				Sheet:   sheet,
			}, nil
		}

		res, err := c.http.R().SetContext(ctx).Get(url)
		if err != nil {
			return Catalog{}, fmt.Errorf("satcatalog: GET %s: %w", url, err)
		}
		if !res.IsSuccess() {
			if res.StatusCode() != http.StatusNotFound {
				c.tel.ReportDebug("catalog not available", url, res.Status())
			}
			continue
		}

		// a body that does not decode, or lacks the product sheet, counts as
		// no catalog for the day
		sheet, err = Decode(res.Body())
		if err != nil {
			c.tel.ReportWarning(report_client_download, err, url)
			lastErr = fmt.Errorf("decode %s: %w", dateKey, err)
			continue
		}

		err = c.store(path, res.Body())
		if err != nil {
			c.tel.ReportWarning(report_client_cache, err, path)
		}
		return Catalog{
			DateKey: dateKey,
			Url:     url,
			Path:    path,
			Sheet:   sheet,
		}, nil
	}
	if lastErr != nil {
		return Catalog{}, fmt.Errorf("%w, last failure: %w", ErrNotFound, lastErr)
	}
	return Catalog{}, ErrNotFound
}

// readCache decodes a cached workbook, an undecodable one is removed.
func (c *Client) readCache(path string) (Sheet, bool) {
	body, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Sheet{}, false
	}
	if err != nil {
		c.tel.ReportWarning(report_client_cache, err, path)
		return Sheet{}, false
	}

	sheet, err := Decode(body)
	if err != nil {
		c.tel.ReportWarning(report_client_cache, err, path)
		err = os.Remove(path)
		if err != nil {
			c.tel.ReportWarning(report_client_cache, err, path)
		}
		return Sheet{}, false
	}
	return sheet, true
}

func (c *Client) store(path string, body []byte) error {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return err
	}
	tmp := path + ".part"
	err = os.WriteFile(tmp, body, 0644)
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Decode reads the product sheet out of an xls workbook.
func Decode(body []byte) (sheet Sheet, err error) {
	// the xls decoder panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed workbook: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(body), "utf-8")
	if err != nil {
		return Sheet{}, err
	}

	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil || strings.TrimSpace(ws.Name) != SheetName {
			continue
		}
		return ParseSheet(sheetRows(ws))
	}
	return Sheet{}, fmt.Errorf("sheet %s not found", SheetName)
}

// maxColumns bounds the scan of rows that were written without a ROW
// record, the decoder reports no width for them.
const maxColumns = 32

// rowAt returns nil for rows that hold no cells, the decoder panics on them.
func rowAt(ws *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return ws.Row(i)
}

func sheetRows(ws *xls.WorkSheet) [][]string {
	rows := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := rowAt(ws, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		width := row.LastCol()
		if width <= 0 {
			width = maxColumns
		}
		cells := make([]string, width)
		for j := range cells {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows
}
