// Package pysmock serves a fake of the PyS form that speaks the same
// view-state postback protocol as the real one.
package pysmock

import (
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"pys-backend/internal/scrapers/pys"
)

type Class struct {
	Key  string
	Name string
}

type Family struct {
	Key     string
	Name    string
	Classes []Class
}

type Segment struct {
	Key      string
	Name     string
	Families []Family
}

type Type struct {
	Key      string
	Name     string
	Segments []Segment
}

// Request is a request as seen by the server.
type Request struct {
	Method      string
	EventTarget string
	Form        url.Values
	Header      http.Header
	// Accepted is false when the postback carried a stale view state or the
	// wrong script manager value.
	Accepted bool
}

type Server struct {
	*httptest.Server

	types []Type

	mu         sync.Mutex
	viewstate  string
	issued     int
	requests   []Request
	failStatus int
	omitForm   bool
	gate       chan struct{}
}

func NewServer(types []Type) *Server {
	s := &Server{types: types}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// FormUrl is the url sessions should be pointed at.
func (s *Server) FormUrl() string {
	return s.URL + "/PyS/catPyS.aspx"
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// FailWith makes every following request answer with status, 0 restores
// normal behavior.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// OmitForm makes the following responses render without form#form1.
func (s *Server) OmitForm(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitForm = omit
}

// Hold blocks every following GET until the returned release is called.
func (s *Server) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

var scriptFor = map[string]string{
	pys.SelectType:    pys.ScriptType,
	pys.SelectSegment: pys.ScriptSegment,
	pys.SelectFamily:  pys.ScriptFamily,
}

var depthOf = map[string]int{
	pys.SelectType:    1,
	pys.SelectSegment: 2,
	pys.SelectFamily:  3,
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil && r.Method == http.MethodGet {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req := Request{
		Method:      r.Method,
		EventTarget: r.PostForm.Get(pys.FieldEventTarget),
		Form:        r.PostForm,
		Header:      r.Header.Clone(),
	}

	if s.failStatus != 0 {
		s.requests = append(s.requests, req)
		http.Error(w, "service unavailable", s.failStatus)
		return
	}

	var path []string
	switch r.Method {
	case http.MethodGet:
		req.Accepted = true
	case http.MethodPost:
		req.Accepted = s.accepts(r.PostForm)
		if req.Accepted {
			depth := depthOf[req.EventTarget]
			selects := []string{pys.SelectType, pys.SelectSegment, pys.SelectFamily}
			for i := 0; i < depth; i++ {
				path = append(path, r.PostForm.Get(selects[i]))
			}
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.requests = append(s.requests, req)

	s.issued++
	s.viewstate = fmt.Sprintf("vs-%d", s.issued)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, s.render(r.Method == http.MethodPost && !req.Accepted, path))
}

func (s *Server) accepts(form url.Values) bool {
	if form.Get(pys.FieldViewState) != s.viewstate {
		return false
	}
	if form.Get(pys.FieldAsyncPost) != pys.AsyncPostValue {
		return false
	}
	target := form.Get(pys.FieldEventTarget)
	script, ok := scriptFor[target]
	if !ok {
		return false
	}
	return form.Get(pys.FieldScriptManager) == script
}

type renderedOption struct {
	key      string
	name     string
	selected bool
}

// levels returns the options of each select given the selected path, a
// level whose parent key is unknown has no options.
func (s *Server) levels(path []string) [4][]renderedOption {
	var out [4][]renderedOption

	for _, t := range s.types {
		out[0] = append(out[0], renderedOption{key: t.Key, name: t.Name, selected: len(path) > 0 && path[0] == t.Key})
		if len(path) < 1 || path[0] != t.Key {
			continue
		}
		for _, seg := range t.Segments {
			out[1] = append(out[1], renderedOption{key: seg.Key, name: seg.Name, selected: len(path) > 1 && path[1] == seg.Key})
			if len(path) < 2 || path[1] != seg.Key {
				continue
			}
			for _, fam := range seg.Families {
				out[2] = append(out[2], renderedOption{key: fam.Key, name: fam.Name, selected: len(path) > 2 && path[2] == fam.Key})
				if len(path) < 3 || path[2] != fam.Key {
					continue
				}
				for _, c := range fam.Classes {
					out[3] = append(out[3], renderedOption{key: c.Key, name: c.Name})
				}
			}
		}
	}
	return out
}

func (s *Server) render(reset bool, path []string) string {
	var levels [4][]renderedOption
	if !reset {
		levels = s.levels(path)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Catálogo PyS</title></head><body>\n")
	if !s.omitForm {
		b.WriteString(`<form method="post" action="./catPyS.aspx" id="form1">` + "\n")
	}
	fmt.Fprintf(&b, `<input type="hidden" name="%s" id="%s" value="%s" />`+"\n", pys.FieldViewState, pys.FieldViewState, s.viewstate)
	b.WriteString(`<input type="hidden" name="__EVENTVALIDATION" id="__EVENTVALIDATION" value="ev" />` + "\n")
	b.WriteString(`<input type="hidden" name="__EVENTTARGET" id="__EVENTTARGET" value="" />` + "\n")
	b.WriteString(`<input name="txtBuscar" id="txtBuscar" value="" />` + "\n")
	b.WriteString(`<input type="submit" name="btnBuscar" value="Buscar" />` + "\n")
	b.WriteString(`<input type="checkbox" name="chkVigentes" value="on" />` + "\n")

	selects := []string{pys.SelectType, pys.SelectSegment, pys.SelectFamily, pys.SelectClass}
	for i, id := range selects {
		fmt.Fprintf(&b, `<select name="%s" id="%s">`+"\n", id, id)
		fmt.Fprintf(&b, `  <option value="%s">-- Seleccione --</option>`+"\n", pys.PlaceholderKey)
		for _, opt := range levels[i] {
			selected := ""
			if opt.selected {
				selected = ` selected="selected"`
			}
			fmt.Fprintf(&b, `  <option value="%s"%s>%s</option>`+"\n", html.EscapeString(opt.key), selected, html.EscapeString(opt.name))
		}
		b.WriteString("</select>\n")
	}

	if !s.omitForm {
		b.WriteString("</form>\n")
	}
	b.WriteString("</body></html>\n")
	return b.String()
}

// Sample is a small catalog covering two types, used across tests.
func Sample() []Type {
	return []Type{
		{
			Key:  "1",
			Name: "Productos",
			Segments: []Segment{
				{
					Key:  "10",
					Name: "Material Vivo Vegetal y Animal, Accesorios y Suministros",
					Families: []Family{
						{
							Key:  "1010",
							Name: "Animales vivos",
							Classes: []Class{
								{Key: "101015", Name: "Animales de granja"},
								{Key: "101016", Name: "Pájaros y aves de corral"},
							},
						},
						{
							Key:  "1011",
							Name: "Productos para animales domésticos",
							Classes: []Class{
								{Key: "101115", Name: "Productos para animales domésticos"},
							},
						},
					},
				},
				{
					Key:  "11",
					Name: "Material Mineral, Textil y Vegetal y Animal No Comestible",
					Families: []Family{
						{
							Key:  "1110",
							Name: "Minerales, minerales metálicos y metales",
							Classes: []Class{
								{Key: "111015", Name: "Minerales"},
							},
						},
					},
				},
			},
		},
		{
			Key:  "2",
			Name: "Servicios",
			Segments: []Segment{
				{
					Key:  "70",
					Name: "Servicios de Granja, Pesca, Bosques y Fauna",
					Families: []Family{
						{
							Key:  "7010",
							Name: "Pesquerías y acuicultura",
							Classes: []Class{
								{Key: "701015", Name: "Operaciones pesqueras"},
							},
						},
						{
							Key:     "7011",
							Name:    "Horticultura",
							Classes: []Class{},
						},
					},
				},
			},
		},
	}
}
