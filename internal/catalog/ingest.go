// Package catalog keeps the product/service key table in sync with the
// latest published catalog workbook.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"pys-backend/internal/components/assert"
	"pys-backend/internal/components/chrono"
	"pys-backend/internal/components/telemetry"
	"pys-backend/internal/db"
	"pys-backend/internal/scrapers/satcatalog"
)

const (
	report_ingester_ingest = "ingester.ingest"
	report_ingester_rows   = "ingester.rows"
)

// ErrBusy is returned when another ingest is still running.
var ErrBusy = errors.New("catalog: ingest already running")

// ClassOfProduct derives the class key of an 8 digit product key, the class
// is the product key without its last two digits.
func ClassOfProduct(code int64) int64 {
	return code / 100
}

// Fetcher finds and decodes the newest catalog workbook.
type Fetcher interface {
	FetchLatest(ctx context.Context, now time.Time) (satcatalog.Catalog, error)
}

type Result struct {
	DateKey  string `json:"date_key"`
	Url      string `json:"url"`
	Products int    `json:"products"`
	Skipped  int    `json:"skipped_rows"`
	// AlreadyImported is true when the catalog was imported before and the
	// ingest was not forced, nothing is written in that case.
	AlreadyImported bool `json:"already_imported"`
}

type Ingester struct {
	fetcher Fetcher
	db      *db.Queries
	makeTx  db.MakeTx
	time    chrono.TimeAPI
	tel     telemetry.API

	mu sync.Mutex
}

func NewIngester(fetcher Fetcher, qry *db.Queries, makeTx db.MakeTx, time chrono.TimeAPI, tel telemetry.API) *Ingester {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(qry, "db")
	assert.NotNil(makeTx, "makeTx")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")

	return &Ingester{
		fetcher: fetcher,
		db:      qry,
		makeTx:  makeTx,
		time:    time,
		tel:     telemetry.NewScopedAPI("catalog", tel),
	}
}

// Ingest fetches the newest catalog and replaces the product table with it,
// unless that catalog was already imported and forced is false.
func (i *Ingester) Ingest(ctx context.Context, forced bool) (Result, error) {
	if !i.mu.TryLock() {
		return Result{}, ErrBusy
	}
	defer i.mu.Unlock()

	catalog, err := i.fetcher.FetchLatest(ctx, i.time.Now())
	if err != nil {
		i.tel.ReportBroken(report_ingester_ingest, err)
		return Result{}, err
	}
	result := Result{
		DateKey:  catalog.DateKey,
		Url:      catalog.Url,
		Products: len(catalog.Products),
		Skipped:  catalog.Skipped,
	}
	if catalog.Skipped > 0 {
		i.tel.ReportWarning(report_ingester_rows, fmt.Errorf("%d rows skipped", catalog.Skipped), catalog.DateKey)
	}

	if !forced {
		_, err := i.db.GetCatalogImport(ctx, catalog.DateKey)
		if err == nil {
			result.AlreadyImported = true
			return result, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return Result{}, fmt.Errorf("catalog: lookup import: %w", err)
		}
	}

	err = ReplaceProducts(ctx, i.makeTx, catalog, i.time.Now())
	if err != nil {
		i.tel.ReportBroken(report_ingester_ingest, err, catalog.DateKey)
		return Result{}, err
	}
	i.tel.ReportCount("products", int64(len(catalog.Products)))
	return result, nil
}

// ReplaceProducts swaps the whole product table and records the import in a
// single transaction.
func ReplaceProducts(ctx context.Context, makeTx db.MakeTx, catalog satcatalog.Catalog, importedAt time.Time) error {
	tx, discard, commit, err := makeTx(ctx)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer discard()

	err = tx.DeleteAllProducts(ctx)
	if err != nil {
		return fmt.Errorf("catalog: delete products: %w", err)
	}
	for _, p := range catalog.Products {
		err = tx.InsertProduct(ctx, db.ClaveProdServ{
			Code:                      p.Code,
			Descripcion:               p.Description,
			IncluirIvaTrasladado:      p.IncludeIVA,
			IncluirIepsTrasladado:     p.IncludeIEPS,
			ComplementoQueDebeIncluir: p.Complement,
			FechaInicioVigencia:       p.ValidFrom,
			FechaFinVigencia:          p.ValidTo,
			EstimuloFranjaFronteriza:  p.BorderStimulus,
			PalabrasSimilares:         p.SimilarWords,
			ClaseNum:                  ClassOfProduct(p.Code),
		})
		if err != nil {
			return fmt.Errorf("catalog: insert product %d: %w", p.Code, err)
		}
	}

	err = tx.DeleteCatalogImport(ctx, catalog.DateKey)
	if err != nil {
		return fmt.Errorf("catalog: delete import: %w", err)
	}
	err = tx.InsertCatalogImport(ctx, db.CatalogImport{
		DateKey:    catalog.DateKey,
		SourceUrl:  catalog.Url,
		ImportedAt: importedAt.Unix(),
		RowCount:   int64(len(catalog.Products)),
	})
	if err != nil {
		return fmt.Errorf("catalog: insert import: %w", err)
	}

	err = commit()
	if err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}
