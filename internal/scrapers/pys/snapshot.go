package pys

import (
	"bytes"
	"strings"

	"pys-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Option is one entry of a select, Label is whitespace normalized.
type Option struct {
	Key   string
	Label string
}

// FormSnapshot is a parsed response of the form page.
type FormSnapshot struct {
	doc     *goquery.Document
	state   map[string]string
	hasForm bool
}

func parseSnapshot(body []byte) (FormSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return FormSnapshot{}, err
	}

	state := map[string]string{}
	form := doc.Find("form#" + FormId)
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		// an input without a type attribute is a text input
		kind := strings.ToLower(input.AttrOr("type", "text"))
		if kind != "hidden" && kind != "text" {
			return
		}
		name := input.AttrOr("name", "")
		if name == "" {
			return
		}
		state[name] = input.AttrOr("value", "")
	})

	return FormSnapshot{
		doc:     doc,
		state:   state,
		hasForm: form.Length() > 0,
	}, nil
}

// SelectOptions returns the options of select#selectId in document order,
// skipping empty and placeholder values. An absent select yields an empty slice.
func (f FormSnapshot) SelectOptions(selectId string) []Option {
	out := []Option{}
	if f.doc == nil {
		return out
	}

	f.doc.Find("select#" + selectId + " option").Each(func(_ int, sel *goquery.Selection) {
		key := strings.TrimSpace(sel.AttrOr("value", ""))
		if key == "" || key == PlaceholderKey {
			return
		}
		out = append(out, Option{
			Key:   key,
			Label: htmlutil.NormalizeText(htmlutil.GetText(sel.Get(0))),
		})
	})
	return out
}

// FormState returns a copy of the hidden and text inputs of the form.
func (f FormSnapshot) FormState() map[string]string {
	out := make(map[string]string, len(f.state))
	for k, v := range f.state {
		out[k] = v
	}
	return out
}

// HasForm reports whether the page contained form#form1.
func (f FormSnapshot) HasForm() bool {
	return f.hasForm
}
