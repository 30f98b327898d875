package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestNormalizeText(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "Ganado vacuno", expected: "Ganado vacuno"},
		{input: "  Animales\n\t vivos ", expected: "Animales vivos"},
		{input: "Materias\u00a0primas", expected: "Materias primas"},
		{input: "Pescado\u200b fresco", expected: "Pescado fresco"},
		{input: "", expected: ""},
	}

	for _, row := range table {
		require.Equal(t, row.expected, NormalizeText(row.input))
	}
}

func TestGetTextAndAttr(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<select id="cmbTipo"><option value="1">Pro<b>ductos</b></option></select>`))
	if err != nil {
		t.Fatal(err)
	}

	var option *html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			option = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)

	require.NotNil(t, option)
	require.Equal(t, "Productos", GetText(option))
	require.Equal(t, "1", Attr(option, "value"))
	require.Equal(t, "", Attr(option, "selected"))
	require.Equal(t, "", Attr(nil, "value"))
}
