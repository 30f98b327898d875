package db

import (
	"context"
)

const productColumns = `p.c_ClaveProdServ, p.Descripcion, p.Incluir_IVA_trasladado, p.Incluir_IEPS_trasladado,
    p.Complemento_que_debe_incluir, p.FechaInicioVigencia, p.FechaFinVigencia,
    p.Estimulo_Franja_Fronteriza, p.Palabras_similares, p.Clase_num`

func productTargets(i *ClaveProdServ) []any {
	return []any{
		&i.Code,
		&i.Descripcion,
		&i.IncluirIvaTrasladado,
		&i.IncluirIepsTrasladado,
		&i.ComplementoQueDebeIncluir,
		&i.FechaInicioVigencia,
		&i.FechaFinVigencia,
		&i.EstimuloFranjaFronteriza,
		&i.PalabrasSimilares,
		&i.ClaseNum,
	}
}

func (q *Queries) queryProducts(ctx context.Context, query string, args ...any) ([]ClaveProdServ, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ClaveProdServ{}
	for rows.Next() {
		var i ClaveProdServ
		if err := rows.Scan(productTargets(&i)...); err != nil {
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

const deleteAllProducts = `DELETE FROM clave_prod_serv`

func (q *Queries) DeleteAllProducts(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllProducts)
	return err
}

const insertProduct = `INSERT INTO clave_prod_serv (
    c_ClaveProdServ, Descripcion, Incluir_IVA_trasladado, Incluir_IEPS_trasladado,
    Complemento_que_debe_incluir, FechaInicioVigencia, FechaFinVigencia,
    Estimulo_Franja_Fronteriza, Palabras_similares, Clase_num
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertProduct(ctx context.Context, arg ClaveProdServ) error {
	_, err := q.db.ExecContext(ctx, insertProduct,
		arg.Code,
		arg.Descripcion,
		arg.IncluirIvaTrasladado,
		arg.IncluirIepsTrasladado,
		arg.ComplementoQueDebeIncluir,
		arg.FechaInicioVigencia,
		arg.FechaFinVigencia,
		arg.EstimuloFranjaFronteriza,
		arg.PalabrasSimilares,
		arg.ClaseNum,
	)
	return err
}

const countProducts = `SELECT COUNT(*) FROM clave_prod_serv`

func (q *Queries) CountProducts(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countProducts)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getProduct = `SELECT ` + productColumns + `,
    c.tipo_num, c.Tipo, c.Div_num, c.Division, c.Grupo_num, c.Grupo, c.Clase
FROM clave_prod_serv p
LEFT JOIN classification c ON c.Clase_num = p.Clase_num
WHERE p.c_ClaveProdServ = ?`

func (q *Queries) GetProduct(ctx context.Context, code int64) (ProductWithClassification, error) {
	row := q.db.QueryRowContext(ctx, getProduct, code)
	var i ProductWithClassification
	targets := append(
		productTargets(&i.ClaveProdServ),
		&i.TipoNum,
		&i.Tipo,
		&i.DivNum,
		&i.Division,
		&i.GrupoNum,
		&i.Grupo,
		&i.Clase,
	)
	err := row.Scan(targets...)
	return i, err
}

const listProductsByClass = `SELECT ` + productColumns + ` FROM clave_prod_serv p
WHERE p.Clase_num = ?
ORDER BY p.c_ClaveProdServ`

func (q *Queries) ListProductsByClass(ctx context.Context, claseNum int64) ([]ClaveProdServ, error) {
	return q.queryProducts(ctx, listProductsByClass, claseNum)
}

const listProductsInRange = `SELECT ` + productColumns + ` FROM clave_prod_serv p
WHERE p.c_ClaveProdServ BETWEEN ? AND ?
ORDER BY p.c_ClaveProdServ
LIMIT ?`

type ListProductsInRangeParams struct {
	Low   int64
	High  int64
	Limit int64
}

func (q *Queries) ListProductsInRange(ctx context.Context, arg ListProductsInRangeParams) ([]ClaveProdServ, error) {
	return q.queryProducts(ctx, listProductsInRange, arg.Low, arg.High, arg.Limit)
}

const searchProducts = `SELECT ` + productColumns + ` FROM clave_prod_serv p
WHERE p.Descripcion LIKE ? OR p.Palabras_similares LIKE ?
ORDER BY p.c_ClaveProdServ
LIMIT ?`

type SearchProductsParams struct {
	Pattern string
	Limit   int64
}

func (q *Queries) SearchProducts(ctx context.Context, arg SearchProductsParams) ([]ClaveProdServ, error) {
	return q.queryProducts(ctx, searchProducts, arg.Pattern, arg.Pattern, arg.Limit)
}
