package pull

import (
	"context"
	"fmt"
	"strconv"

	"pys-backend/internal/db"
	"pys-backend/internal/taxonomy"
)

// ParseClassKey converts a class key into the persisted Clase_num.
func ParseClassKey(key string) (int64, error) {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("class key %q is not numeric: %w", key, err)
	}
	return n, nil
}

// ReplaceClassifications swaps the whole classification table for rows in a
// single transaction, on any failure the previous contents are kept.
func ReplaceClassifications(ctx context.Context, makeTx db.MakeTx, rows []taxonomy.Row) error {
	tx, discard, commit, err := makeTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// a no-op once committed
	defer discard()

	err = tx.DeleteAllClassifications(ctx)
	if err != nil {
		return fmt.Errorf("delete classifications: %w", err)
	}

	for i, row := range rows {
		claseNum, err := ParseClassKey(row.ClaseNum)
		if err != nil {
			return err
		}
		err = tx.InsertClassification(ctx, db.InsertClassificationParams{
			TipoNum:  row.TipoNum,
			Tipo:     row.Tipo,
			DivNum:   row.DivNum,
			Division: row.Division,
			GrupoNum: row.GrupoNum,
			Grupo:    row.Grupo,
			ClaseNum: claseNum,
			Clase:    row.Clase,
			Orden:    int64(i),
		})
		if err != nil {
			return fmt.Errorf("insert class %s: %w", row.ClaseNum, err)
		}
	}

	err = commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RowsFromDB converts persisted classifications back into taxonomy rows.
func RowsFromDB(rows []db.Classification) []taxonomy.Row {
	out := make([]taxonomy.Row, len(rows))
	for i, r := range rows {
		out[i] = taxonomy.Row{
			TipoNum:  r.TipoNum,
			Tipo:     r.Tipo,
			DivNum:   r.DivNum,
			Division: r.Division,
			GrupoNum: r.GrupoNum,
			Grupo:    r.Grupo,
			ClaseNum: strconv.FormatInt(r.ClaseNum, 10),
			Clase:    r.Clase,
		}
	}
	return out
}
