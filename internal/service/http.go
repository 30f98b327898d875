package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pys-backend/internal/catalog"

	"github.com/rs/cors"
)

const report_http_encode = "http.encode"

// Handler routes the JSON API, CORS included.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /show_latest", s.handleShowLatest)
	mux.HandleFunc("GET /show_latest.xml", s.handleShowLatestXML)
	mux.HandleFunc("POST /pull", s.handlePull)
	mux.HandleFunc("GET /pull/status", s.handlePullStatus)
	mux.HandleFunc("GET /classifications/search", s.handleSearchClassifications)
	mux.HandleFunc("GET /classifications/hierarchy", s.handleHierarchy)
	mux.HandleFunc("GET /classifications/{clase}", s.handleClassification)
	mux.HandleFunc("GET /products/search", s.handleSearchProducts)
	mux.HandleFunc("GET /products/{code}", s.handleProduct)
	mux.HandleFunc("POST /catalog/refresh", s.handleCatalogRefresh)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler(mux)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.tel.ReportWarning(report_http_encode, err)
	}
}

type errorBody struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusOf(err), errorBody{
		Error:     err.Error(),
		Timestamp: s.time.Now(),
	})
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.Join(ErrInvalidQuery, errors.New("limit must be a positive integer"))
	}
	return limit, nil
}

func queryForced(r *http.Request) bool {
	forced, _ := strconv.ParseBool(r.URL.Query().Get("forced"))
	return forced
}

func pathInt(r *http.Request, name string) (int64, error) {
	n, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.Join(ErrInvalidQuery, errors.New(name+" must be numeric"))
	}
	return n, nil
}

type indexBody struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, indexBody{
		Message:   "PyS taxonomy service, see /show_latest",
		Timestamp: s.time.Now(),
	})
}

func (s *Service) handleShowLatest(w http.ResponseWriter, r *http.Request) {
	tree, err := s.Latest(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

func (s *Service) handleShowLatestXML(w http.ResponseWriter, r *http.Request) {
	data, err := s.LatestXML(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Service) handlePull(w http.ResponseWriter, r *http.Request) {
	trigger := s.TriggerPull(r.Context(), queryForced(r))
	status := http.StatusOK
	if trigger.Started {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, trigger)
}

func (s *Service) handlePullStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.PullStatus(r.Context()))
}

func (s *Service) handleSearchClassifications(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	matches, err := s.SearchClassifications(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, matches)
}

func (s *Service) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tree, err := s.Hierarchy(r.Context(), q.Get("tipo"), q.Get("div"), q.Get("grupo"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tree)
}

func (s *Service) handleClassification(w http.ResponseWriter, r *http.Request) {
	clase, err := pathInt(r, "clase")
	if err != nil {
		s.writeError(w, err)
		return
	}
	detail, err := s.Classification(r.Context(), clase)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Service) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	products, err := s.SearchProducts(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, products)
}

func (s *Service) handleProduct(w http.ResponseWriter, r *http.Request) {
	code, err := pathInt(r, "code")
	if err != nil {
		s.writeError(w, err)
		return
	}
	product, err := s.Product(r.Context(), code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, product)
}

func (s *Service) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.TriggerCatalog(r.Context(), queryForced(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
