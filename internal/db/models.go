package db

import "database/sql"

type Classification struct {
	TipoNum  string
	Tipo     string
	DivNum   string
	Division string
	GrupoNum string
	Grupo    string
	ClaseNum int64
	Clase    string
	Orden    int64
}

type ClaveProdServ struct {
	Code                      int64
	Descripcion               string
	IncluirIvaTrasladado      string
	IncluirIepsTrasladado     string
	ComplementoQueDebeIncluir string
	FechaInicioVigencia       string
	FechaFinVigencia          string
	EstimuloFranjaFronteriza  string
	PalabrasSimilares         string
	ClaseNum                  int64
}

// ProductWithClassification is a product left joined with its class, the
// class columns are null when the class is not in the taxonomy.
type ProductWithClassification struct {
	ClaveProdServ
	TipoNum  sql.NullString
	Tipo     sql.NullString
	DivNum   sql.NullString
	Division sql.NullString
	GrupoNum sql.NullString
	Grupo    sql.NullString
	Clase    sql.NullString
}

type CatalogImport struct {
	DateKey    string
	SourceUrl  string
	ImportedAt int64
	RowCount   int64
}

type PullHistory struct {
	ID           string
	StartedAt    int64
	FinishedAt   int64
	Status       string
	ErrorMessage string
	Types        int64
	Segments     int64
	Families     int64
	Classes      int64
}
