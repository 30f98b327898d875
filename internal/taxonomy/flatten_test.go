package taxonomy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	rows := Flatten(singleClassTree())
	require.Equal(t, []Row{{
		TipoNum:  "01",
		Tipo:     "Materias primas",
		DivNum:   "10",
		Division: "Agropecuario",
		GrupoNum: "1010",
		Grupo:    "Animales vivos",
		ClaseNum: "10101500",
		Clase:    "Ganado vacuno",
	}}, rows)

	rows = Flatten(wideTree())
	keys := []string{}
	for _, row := range rows {
		keys = append(keys, row.ClaseNum)
	}
	require.Equal(t, []string{"101015", "101016", "101115", "701015"}, keys)
	require.Equal(t, "Servicios", rows[3].Tipo)
	require.Equal(t, "7010", rows[3].GrupoNum)

	require.Empty(t, Flatten(Tree{}))
	require.NotNil(t, Flatten(nil))
}

func TestFlattenCountsClasses(t *testing.T) {
	tree := wideTree()
	tree[1].Segments[0].Families = append(tree[1].Segments[0].Families, Family{
		Key:     "7011",
		Name:    "Horticultura",
		Classes: []Class{},
	})

	require.Len(t, Flatten(tree), tree.Stats().Classes)
	require.Equal(t, Stats{Types: 2, Segments: 2, Families: 4, Classes: 4}, tree.Stats())
}

func TestUnflattenInvertsFlatten(t *testing.T) {
	for _, tree := range []Tree{singleClassTree(), wideTree()} {
		if diff := cmp.Diff(tree, Unflatten(Flatten(tree))); diff != "" {
			t.Fatalf("unflatten mismatch (-want +got):\n%s", diff)
		}
	}
	require.Equal(t, Tree{}, Unflatten(nil))
}
