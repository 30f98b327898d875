package taxonomy

// Row is one class together with its ancestors. The column names follow the
// persisted `classification` table: tipo, division (segment), grupo (family)
// and clase.
type Row struct {
	TipoNum  string `json:"tipo_num"`
	Tipo     string `json:"tipo"`
	DivNum   string `json:"div_num"`
	Division string `json:"division"`
	GrupoNum string `json:"grupo_num"`
	Grupo    string `json:"grupo"`
	ClaseNum string `json:"clase_num"`
	Clase    string `json:"clase"`
}

// Flatten emits one row per class in depth first order.
func Flatten(tree Tree) []Row {
	rows := []Row{}
	for _, typ := range tree {
		for _, seg := range typ.Segments {
			for _, fam := range seg.Families {
				for _, class := range fam.Classes {
					rows = append(rows, Row{
						TipoNum:  typ.Key,
						Tipo:     typ.Name,
						DivNum:   seg.Key,
						Division: seg.Name,
						GrupoNum: fam.Key,
						Grupo:    fam.Name,
						ClaseNum: class.Key,
						Clase:    class.Name,
					})
				}
			}
		}
	}
	return rows
}

// Unflatten groups rows back into a tree, nodes keep the order in which
// they first appear. Branches without classes cannot be recovered.
func Unflatten(rows []Row) Tree {
	tree := Tree{}
	typeIdx := map[string]int{}
	segIdx := map[[2]string]int{}
	famIdx := map[[3]string]int{}

	for _, row := range rows {
		ti, ok := typeIdx[row.TipoNum]
		if !ok {
			ti = len(tree)
			typeIdx[row.TipoNum] = ti
			tree = append(tree, Type{Key: row.TipoNum, Name: row.Tipo, Segments: []Segment{}})
		}
		typ := &tree[ti]

		segKey := [2]string{row.TipoNum, row.DivNum}
		si, ok := segIdx[segKey]
		if !ok {
			si = len(typ.Segments)
			segIdx[segKey] = si
			typ.Segments = append(typ.Segments, Segment{Key: row.DivNum, Name: row.Division, Families: []Family{}})
		}
		seg := &typ.Segments[si]

		famKey := [3]string{row.TipoNum, row.DivNum, row.GrupoNum}
		fi, ok := famIdx[famKey]
		if !ok {
			fi = len(seg.Families)
			famIdx[famKey] = fi
			seg.Families = append(seg.Families, Family{Key: row.GrupoNum, Name: row.Grupo, Classes: []Class{}})
		}
		fam := &seg.Families[fi]

		fam.Classes = append(fam.Classes, Class{Key: row.ClaseNum, Name: row.Clase})
	}
	return tree
}
