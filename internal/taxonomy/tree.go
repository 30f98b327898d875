// Package taxonomy holds the four level PyS classification tree and its
// serialized forms.
package taxonomy

type Class struct {
	Key  string `json:"key" xml:"key,attr"`
	Name string `json:"name" xml:"name,attr"`
}

type Family struct {
	Key     string  `json:"key" xml:"key,attr"`
	Name    string  `json:"name" xml:"name,attr"`
	Classes []Class `json:"classes" xml:"class"`
}

type Segment struct {
	Key      string   `json:"key" xml:"key,attr"`
	Name     string   `json:"name" xml:"name,attr"`
	Families []Family `json:"families" xml:"family"`
}

type Type struct {
	Key      string    `json:"key" xml:"key,attr"`
	Name     string    `json:"name" xml:"name,attr"`
	Segments []Segment `json:"segments" xml:"segment"`
}

// Tree is the ordered list of top level types.
type Tree []Type

// Stats counts the nodes of each level.
type Stats struct {
	Types    int `json:"types"`
	Segments int `json:"segments"`
	Families int `json:"families"`
	Classes  int `json:"classes"`
}

func (t Tree) Stats() Stats {
	stats := Stats{Types: len(t)}
	for _, typ := range t {
		stats.Segments += len(typ.Segments)
		for _, seg := range typ.Segments {
			stats.Families += len(seg.Families)
			for _, fam := range seg.Families {
				stats.Classes += len(fam.Classes)
			}
		}
	}
	return stats
}
