// Package httpapi serves the calculator registry as a small JSON HTTP API.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/andrei-cloud/emv_studio/internal/calculator"
	"github.com/andrei-cloud/emv_studio/internal/errorcodes"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// API is the HTTP front of a calculator registry.
type API struct {
	registry *calculator.Registry
}

// CalculatorInfo describes one registered calculator.
type CalculatorInfo struct {
	ID           string              `json:"id"`
	Description  string              `json:"description"`
	Capabilities []string            `json:"capabilities"`
	Schemas      []calculator.Schema `json:"schemas,omitempty"`
}

// ExecuteRequest is the body of an operation call.
type ExecuteRequest struct {
	Params  map[string]string `json:"params"`
	Options map[string]string `json:"options"`
}

// NewAPI serves the calculators of r.
func NewAPI(r *calculator.Registry) *API {
	return &API{registry: r}
}

// NewHandler returns a router with every calculator route mounted.
func NewHandler(r *calculator.Registry) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)
	NewAPI(r).AppendRoutes(router)

	return router
}

// AppendRoutes mounts the health check and the /calculators routes on r.
func (a *API) AppendRoutes(r chi.Router) {
	r.Get("/-/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/calculators", func(r chi.Router) {
		r.Get("/", a.listCalculators)
		r.Route("/{calculatorID}", func(r chi.Router) {
			r.Get("/", a.getCalculator)
			r.Post("/{operation}", a.execute)
		})
	})
}

func (a *API) listCalculators(w http.ResponseWriter, _ *http.Request) {
	calcs := a.registry.List()
	out := make([]CalculatorInfo, 0, len(calcs))
	for _, c := range calcs {
		out = append(out, CalculatorInfo{
			ID:           c.ID(),
			Description:  c.Description(),
			Capabilities: c.Capabilities(),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (a *API) getCalculator(w http.ResponseWriter, r *http.Request) {
	c, ok := a.registry.Get(chi.URLParam(r, "calculatorID"))
	if !ok {
		http.Error(w, "calculator not found", http.StatusNotFound)
		return
	}

	info := CalculatorInfo{
		ID:           c.ID(),
		Description:  c.Description(),
		Capabilities: c.Capabilities(),
	}
	for _, op := range info.Capabilities {
		if s, ok := c.Schema(op); ok {
			info.Schemas = append(info.Schemas, s)
		}
	}

	writeJSON(w, http.StatusOK, info)
}

func (a *API) execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := a.registry.Execute(r.Context(), calculator.Input{
		Calculator: chi.URLParam(r, "calculatorID"),
		Operation:  chi.URLParam(r, "operation"),
		Params:     req.Params,
		Options:    req.Options,
	})

	writeJSON(w, statusFor(res), res)
}

// statusFor maps a result's error code to an HTTP status.
func statusFor(res calculator.Result) int {
	if res.Success {
		return http.StatusOK
	}

	switch res.Code {
	case errorcodes.ErrUnsupportedOperation.Code:
		return http.StatusNotFound
	case errorcodes.ErrInvalidKeyLength.Code, errorcodes.ErrInvalidIVLength.Code,
		errorcodes.ErrInvalidDataLength.Code, errorcodes.ErrInvalidPadding.Code,
		errorcodes.ErrMissingMandatoryTag.Code, errorcodes.ErrValidationFailed.Code,
		errorcodes.ErrInvalidInput.Code, errorcodes.ErrUnsupportedMode.Code:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log.Info().
			Str("event", "http_request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	})
}
