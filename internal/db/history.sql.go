package db

import (
	"context"
)

const deleteCatalogImport = `DELETE FROM catalog_import WHERE date_key = ?`

func (q *Queries) DeleteCatalogImport(ctx context.Context, dateKey string) error {
	_, err := q.db.ExecContext(ctx, deleteCatalogImport, dateKey)
	return err
}

const insertCatalogImport = `INSERT INTO catalog_import (date_key, source_url, imported_at, row_count) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertCatalogImport(ctx context.Context, arg CatalogImport) error {
	_, err := q.db.ExecContext(ctx, insertCatalogImport,
		arg.DateKey,
		arg.SourceUrl,
		arg.ImportedAt,
		arg.RowCount,
	)
	return err
}

const getCatalogImport = `SELECT date_key, source_url, imported_at, row_count FROM catalog_import WHERE date_key = ?`

func (q *Queries) GetCatalogImport(ctx context.Context, dateKey string) (CatalogImport, error) {
	row := q.db.QueryRowContext(ctx, getCatalogImport, dateKey)
	var i CatalogImport
	err := row.Scan(&i.DateKey, &i.SourceUrl, &i.ImportedAt, &i.RowCount)
	return i, err
}

const getLatestCatalogImport = `SELECT date_key, source_url, imported_at, row_count FROM catalog_import
ORDER BY imported_at DESC, date_key DESC
LIMIT 1`

func (q *Queries) GetLatestCatalogImport(ctx context.Context) (CatalogImport, error) {
	row := q.db.QueryRowContext(ctx, getLatestCatalogImport)
	var i CatalogImport
	err := row.Scan(&i.DateKey, &i.SourceUrl, &i.ImportedAt, &i.RowCount)
	return i, err
}

const insertPullHistory = `INSERT INTO pull_history (
    id, started_at, finished_at, status, error_message, types, segments, families, classes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertPullHistory(ctx context.Context, arg PullHistory) error {
	_, err := q.db.ExecContext(ctx, insertPullHistory,
		arg.ID,
		arg.StartedAt,
		arg.FinishedAt,
		arg.Status,
		arg.ErrorMessage,
		arg.Types,
		arg.Segments,
		arg.Families,
		arg.Classes,
	)
	return err
}

const getLatestPullHistory = `SELECT id, started_at, finished_at, status, error_message, types, segments, families, classes
FROM pull_history
ORDER BY started_at DESC
LIMIT 1`

func (q *Queries) GetLatestPullHistory(ctx context.Context) (PullHistory, error) {
	row := q.db.QueryRowContext(ctx, getLatestPullHistory)
	var i PullHistory
	err := row.Scan(
		&i.ID,
		&i.StartedAt,
		&i.FinishedAt,
		&i.Status,
		&i.ErrorMessage,
		&i.Types,
		&i.Segments,
		&i.Families,
		&i.Classes,
	)
	return i, err
}
