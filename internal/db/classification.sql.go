package db

import (
	"context"
)

const classificationColumns = `tipo_num, Tipo, Div_num, Division, Grupo_num, Grupo, Clase_num, Clase, Orden`

func scanClassification(row interface{ Scan(...any) error }) (Classification, error) {
	var i Classification
	err := row.Scan(
		&i.TipoNum,
		&i.Tipo,
		&i.DivNum,
		&i.Division,
		&i.GrupoNum,
		&i.Grupo,
		&i.ClaseNum,
		&i.Clase,
		&i.Orden,
	)
	return i, err
}

func (q *Queries) queryClassifications(ctx context.Context, query string, args ...any) ([]Classification, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Classification{}
	for rows.Next() {
		i, err := scanClassification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteAllClassifications = `DELETE FROM classification`

func (q *Queries) DeleteAllClassifications(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllClassifications)
	return err
}

const insertClassification = `INSERT INTO classification (
    tipo_num, Tipo, Div_num, Division, Grupo_num, Grupo, Clase_num, Clase, Orden
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type InsertClassificationParams = Classification

func (q *Queries) InsertClassification(ctx context.Context, arg InsertClassificationParams) error {
	_, err := q.db.ExecContext(ctx, insertClassification,
		arg.TipoNum,
		arg.Tipo,
		arg.DivNum,
		arg.Division,
		arg.GrupoNum,
		arg.Grupo,
		arg.ClaseNum,
		arg.Clase,
		arg.Orden,
	)
	return err
}

const countClassifications = `SELECT COUNT(*) FROM classification`

func (q *Queries) CountClassifications(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countClassifications)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getClassification = `SELECT ` + classificationColumns + ` FROM classification WHERE Clase_num = ?`

func (q *Queries) GetClassification(ctx context.Context, claseNum int64) (Classification, error) {
	return scanClassification(q.db.QueryRowContext(ctx, getClassification, claseNum))
}

const listClassifications = `SELECT ` + classificationColumns + ` FROM classification ORDER BY Orden`

func (q *Queries) ListClassifications(ctx context.Context) ([]Classification, error) {
	return q.queryClassifications(ctx, listClassifications)
}

const listClassificationsByHierarchy = `SELECT ` + classificationColumns + ` FROM classification
WHERE (? = '' OR tipo_num = ?)
  AND (? = '' OR Div_num = ?)
  AND (? = '' OR Grupo_num = ?)
ORDER BY Orden`

type ListClassificationsByHierarchyParams struct {
	TipoNum  string
	DivNum   string
	GrupoNum string
}

// ListClassificationsByHierarchy filters by any prefix of the hierarchy
// path, empty keys match everything.
func (q *Queries) ListClassificationsByHierarchy(ctx context.Context, arg ListClassificationsByHierarchyParams) ([]Classification, error) {
	return q.queryClassifications(ctx, listClassificationsByHierarchy,
		arg.TipoNum, arg.TipoNum,
		arg.DivNum, arg.DivNum,
		arg.GrupoNum, arg.GrupoNum,
	)
}

const searchClassifications = `SELECT ` + classificationColumns + ` FROM classification
WHERE Clase LIKE ? OR Grupo LIKE ? OR Division LIKE ? OR Tipo LIKE ?
ORDER BY Orden
LIMIT ?`

type SearchClassificationsParams struct {
	Pattern string
	Limit   int64
}

func (q *Queries) SearchClassifications(ctx context.Context, arg SearchClassificationsParams) ([]Classification, error) {
	return q.queryClassifications(ctx, searchClassifications,
		arg.Pattern, arg.Pattern, arg.Pattern, arg.Pattern,
		arg.Limit,
	)
}
