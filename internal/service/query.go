package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"

	"pys-backend/internal/db"
	"pys-backend/internal/pull"
	"pys-backend/internal/taxonomy"

	"github.com/antzucaro/matchr"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 200

	// searchOverfetch widens the LIKE match so ranking has candidates to
	// reorder before truncating.
	searchOverfetch  = 5
	productKeyDigits = 8
)

// Latest returns the persisted taxonomy of the last successful pull.
func (s *Service) Latest(ctx context.Context) (taxonomy.Tree, error) {
	tree, err := taxonomy.ReadJSON(s.pull.ArtifactPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		s.tel.ReportBroken(report_latest_read, err, s.pull.ArtifactPath())
		return nil, err
	}
	return tree, nil
}

// LatestXML returns the persisted XML rendering, or renders the JSON
// artifact when no XML was persisted.
func (s *Service) LatestXML(ctx context.Context) ([]byte, error) {
	if path := s.pull.XmlPath(); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			s.tel.ReportBroken(report_latest_read, err, path)
			return nil, err
		}
	}
	tree, err := s.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return taxonomy.ToXML(tree)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func likePattern(query string) string {
	escaped := strings.NewReplacer("%", "", "_", "").Replace(query)
	return "%" + escaped + "%"
}

type ClassificationMatch struct {
	taxonomy.Row
	Score float64 `json:"score"`
}

// SearchClassifications matches the query against every level name and
// ranks the matches by how similar their class name is to the query.
func (s *Service) SearchClassifications(ctx context.Context, query string, limit int) ([]ClassificationMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search", ErrInvalidQuery)
	}
	limit = normalizeLimit(limit)

	if cached, ok := s.cache.get(query, limit); ok {
		return cached, nil
	}

	rows, err := s.db.SearchClassifications(ctx, db.SearchClassificationsParams{
		Pattern: likePattern(query),
		Limit:   int64(limit * searchOverfetch),
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "SearchClassifications", query)
		return nil, err
	}

	lowered := strings.ToLower(query)
	matches := make([]ClassificationMatch, len(rows))
	for i, row := range pull.RowsFromDB(rows) {
		matches[i] = ClassificationMatch{
			Row:   row,
			Score: matchr.JaroWinkler(lowered, strings.ToLower(row.Clase), false),
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.cache.add(query, limit, matches)
	return matches, nil
}

// Hierarchy returns the subtree under a path of keys. Trailing keys may be
// empty, a key may not be set when its parent is empty.
func (s *Service) Hierarchy(ctx context.Context, tipo, div, grupo string) (taxonomy.Tree, error) {
	if (div != "" && tipo == "") || (grupo != "" && div == "") {
		return nil, fmt.Errorf("%w: hierarchy keys must be given from the top", ErrInvalidQuery)
	}
	rows, err := s.db.ListClassificationsByHierarchy(ctx, db.ListClassificationsByHierarchyParams{
		TipoNum:  tipo,
		DivNum:   div,
		GrupoNum: grupo,
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListClassificationsByHierarchy", tipo, div, grupo)
		return nil, err
	}
	return taxonomy.Unflatten(pull.RowsFromDB(rows)), nil
}

type Product struct {
	Code           string `json:"code"`
	Description    string `json:"description"`
	IncludeIVA     string `json:"include_iva"`
	IncludeIEPS    string `json:"include_ieps"`
	Complement     string `json:"complement"`
	ValidFrom      string `json:"valid_from"`
	ValidTo        string `json:"valid_to"`
	BorderStimulus string `json:"border_stimulus"`
	SimilarWords   string `json:"similar_words"`
	ClaseNum       string `json:"clase_num"`
}

// FormatProductKey renders a product key zero padded to eight digits.
func FormatProductKey(code int64) string {
	return fmt.Sprintf("%0*d", productKeyDigits, code)
}

func productOf(p db.ClaveProdServ) Product {
	return Product{
		Code:           FormatProductKey(p.Code),
		Description:    p.Descripcion,
		IncludeIVA:     p.IncluirIvaTrasladado,
		IncludeIEPS:    p.IncluirIepsTrasladado,
		Complement:     p.ComplementoQueDebeIncluir,
		ValidFrom:      p.FechaInicioVigencia,
		ValidTo:        p.FechaFinVigencia,
		BorderStimulus: p.EstimuloFranjaFronteriza,
		SimilarWords:   p.PalabrasSimilares,
		ClaseNum:       strconv.FormatInt(p.ClaseNum, 10),
	}
}

func productsOf(rows []db.ClaveProdServ) []Product {
	out := make([]Product, len(rows))
	for i, p := range rows {
		out[i] = productOf(p)
	}
	return out
}

type ClassificationDetail struct {
	taxonomy.Row
	Products []Product `json:"products"`
}

func (s *Service) Classification(ctx context.Context, claseNum int64) (ClassificationDetail, error) {
	row, err := s.db.GetClassification(ctx, claseNum)
	if errors.Is(err, sql.ErrNoRows) {
		return ClassificationDetail{}, ErrNotFound
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetClassification", claseNum)
		return ClassificationDetail{}, err
	}
	products, err := s.db.ListProductsByClass(ctx, claseNum)
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "ListProductsByClass", claseNum)
		return ClassificationDetail{}, err
	}
	return ClassificationDetail{
		Row:      pull.RowsFromDB([]db.Classification{row})[0],
		Products: productsOf(products),
	}, nil
}

// keyRange returns the product keys starting with a numeric prefix.
func keyRange(prefix string) (low, high int64, ok bool) {
	if len(prefix) == 0 || len(prefix) > productKeyDigits {
		return 0, 0, false
	}
	n, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || n < 0 {
		return 0, 0, false
	}
	scale := int64(1)
	for i := len(prefix); i < productKeyDigits; i++ {
		scale *= 10
	}
	return n * scale, (n+1)*scale - 1, true
}

// SearchProducts treats a numeric query as a key prefix and anything else as
// text matched against descriptions and similar words.
func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search", ErrInvalidQuery)
	}
	limit = normalizeLimit(limit)

	if low, high, ok := keyRange(query); ok {
		rows, err := s.db.ListProductsInRange(ctx, db.ListProductsInRangeParams{
			Low:   low,
			High:  high,
			Limit: int64(limit),
		})
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "ListProductsInRange", query)
			return nil, err
		}
		return productsOf(rows), nil
	}

	rows, err := s.db.SearchProducts(ctx, db.SearchProductsParams{
		Pattern: likePattern(query),
		Limit:   int64(limit),
	})
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "SearchProducts", query)
		return nil, err
	}
	return productsOf(rows), nil
}

type ProductDetail struct {
	Product
	// Classification is nil when the product's class is not in the pulled
	// taxonomy.
	Classification *taxonomy.Row `json:"classification"`
}

func (s *Service) Product(ctx context.Context, code int64) (ProductDetail, error) {
	row, err := s.db.GetProduct(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return ProductDetail{}, ErrNotFound
	}
	if err != nil {
		s.tel.ReportBroken(report_db_query, err, "GetProduct", code)
		return ProductDetail{}, err
	}

	out := ProductDetail{Product: productOf(row.ClaveProdServ)}
	if row.Clase.Valid {
		out.Classification = &taxonomy.Row{
			TipoNum:  row.TipoNum.String,
			Tipo:     row.Tipo.String,
			DivNum:   row.DivNum.String,
			Division: row.Division.String,
			GrupoNum: row.GrupoNum.String,
			Grupo:    row.Grupo.String,
			ClaseNum: strconv.FormatInt(row.ClaveProdServ.ClaseNum, 10),
			Clase:    row.Clase.String,
		}
	}
	return out, nil
}
