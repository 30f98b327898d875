package satcatalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseSheet(t *testing.T) {
	rows := [][]string{
		{"Catálogo de productos/servicios."},
		nil,
		{"", "Versión 4.0"},
		{
			"c_ClaveProdServ", "Descripcion", "Incluir_IVA_trasladado", "Incluir_IEPS_trasladado",
			"Complemento_que_debe_incluir", "FechaInicioVigencia", "FechaFinVigencia",
			"Estimulo_Franja_Fronteriza", "Palabras_similares",
		},
		{"01010101", "No existe en el catálogo", "Opcional", "Opcional", "", "2022-01-01T00:00:00Z", "", "", ""},
		{"10101500", " Animales vivos de granja ", "Sí", "No", "", "44562", "", "0", "Ganado"},
		{"10101501.0", "Gatos vivos", "Sí", "No", "", "01/01/2022", "", "", "Mascotas"},
		{"abc", "Fila inválida"},
		{"10101500", "Repetida"},
		{"", ""},
		{"10101502", "Perros"},
	}

	sheet, err := ParseSheet(rows)
	require.NoError(t, err)
	require.Equal(t, 2, sheet.Skipped)

	expected := []Product{
		{Code: 1010101, Description: "No existe en el catálogo", IncludeIVA: "Opcional", IncludeIEPS: "Opcional", ValidFrom: "2022-01-01"},
		{Code: 10101500, Description: "Animales vivos de granja", IncludeIVA: "Sí", IncludeIEPS: "No", ValidFrom: "2022-01-01", BorderStimulus: "0", SimilarWords: "Ganado"},
		{Code: 10101501, Description: "Gatos vivos", IncludeIVA: "Sí", IncludeIEPS: "No", ValidFrom: "2022-01-01", SimilarWords: "Mascotas"},
		{Code: 10101502, Description: "Perros"},
	}
	if diff := cmp.Diff(expected, sheet.Products); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSheetWithoutHeader(t *testing.T) {
	_, err := ParseSheet([][]string{{"Descripcion"}, {"10101500", "Gatos"}})
	require.ErrorIs(t, err, ErrHeaderNotFound)

	_, err = ParseSheet([][]string{{"c_ClaveProdServ", "Otra"}})
	require.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{raw: "", expected: ""},
		{raw: "2023-06-30", expected: "2023-06-30"},
		{raw: "2023-06-30T00:00:00Z", expected: "2023-06-30"},
		{raw: "2023-06-30 12:00:00", expected: "2023-06-30"},
		{raw: "30/06/2023", expected: "2023-06-30"},
		{raw: "45107", expected: "2023-06-30"},
		{raw: "pendiente", expected: "pendiente"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, NormalizeDate(tc.raw), "raw %q", tc.raw)
	}
}
