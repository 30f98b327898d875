package satcatalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SheetName is the workbook sheet holding product/service keys.
const SheetName = "c_ClaveProdServ"

const (
	colCode           = "c_ClaveProdServ"
	colDescription    = "Descripcion"
	colIncludeIVA     = "Incluir_IVA_trasladado"
	colIncludeIEPS    = "Incluir_IEPS_trasladado"
	colComplement     = "Complemento_que_debe_incluir"
	colValidFrom      = "FechaInicioVigencia"
	colValidTo        = "FechaFinVigencia"
	colBorderStimulus = "Estimulo_Franja_Fronteriza"
	colSimilarWords   = "Palabras_similares"
)

var ErrHeaderNotFound = errors.New("satcatalog: header row not found")

type Product struct {
	Code           int64  `json:"code"`
	Description    string `json:"description"`
	IncludeIVA     string `json:"include_iva"`
	IncludeIEPS    string `json:"include_ieps"`
	Complement     string `json:"complement"`
	ValidFrom      string `json:"valid_from"`
	ValidTo        string `json:"valid_to"`
	BorderStimulus string `json:"border_stimulus"`
	SimilarWords   string `json:"similar_words"`
}

type Sheet struct {
	Products []Product
	// Skipped counts rows whose key was not a number or was repeated.
	Skipped int
}

// ParseSheet reads the rows of the product sheet. The sheet opens with a few
// title rows, parsing starts after the row whose first cell is the key
// column header.
func ParseSheet(rows [][]string) (Sheet, error) {
	headerIdx := -1
	for i, row := range rows {
		if len(row) > 0 && strings.TrimSpace(row[0]) == colCode {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return Sheet{}, ErrHeaderNotFound
	}

	columns := map[string]int{}
	for i, cell := range rows[headerIdx] {
		name := strings.TrimSpace(cell)
		if _, ok := columns[name]; !ok && name != "" {
			columns[name] = i
		}
	}
	if _, ok := columns[colDescription]; !ok {
		return Sheet{}, fmt.Errorf("satcatalog: missing column %s", colDescription)
	}

	cell := func(row []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := Sheet{Products: []Product{}}
	seen := map[int64]struct{}{}
	for _, row := range rows[headerIdx+1:] {
		raw := cell(row, colCode)
		if raw == "" {
			continue
		}
		code, err := parseCode(raw)
		if err != nil {
			out.Skipped++
			continue
		}
		if _, ok := seen[code]; ok {
			out.Skipped++
			continue
		}
		seen[code] = struct{}{}

		out.Products = append(out.Products, Product{
			Code:           code,
			Description:    cell(row, colDescription),
			IncludeIVA:     cell(row, colIncludeIVA),
			IncludeIEPS:    cell(row, colIncludeIEPS),
			Complement:     cell(row, colComplement),
			ValidFrom:      NormalizeDate(cell(row, colValidFrom)),
			ValidTo:        NormalizeDate(cell(row, colValidTo)),
			BorderStimulus: cell(row, colBorderStimulus),
			SimilarWords:   cell(row, colSimilarWords),
		})
	}
	return out, nil
}

// parseCode accepts integers with leading zeros and integral floats, the
// way spreadsheet cells sometimes render them.
func parseCode(raw string) (int64, error) {
	code, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return code, nil
	}
	f, ferr := strconv.ParseFloat(raw, 64)
	if ferr != nil || f != math.Trunc(f) || f < 0 {
		return 0, err
	}
	return int64(f), nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2/1/2006",
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// NormalizeDate renders a date cell as YYYY-MM-DD, values that are not
// recognizable dates are returned unchanged.
func NormalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.Format("2006-01-02")
		}
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err == nil && serial > 0 && serial < 2958466 {
		return excelEpoch.AddDate(0, 0, int(serial)).Format("2006-01-02")
	}
	return raw
}
