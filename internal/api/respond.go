package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/safar/go-stock-ledger/internal/database"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	ItemID    int64             `json:"item_id,omitempty"`
	Requested int64             `json:"requested,omitempty"`
	Available *int64            `json:"available,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode json response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// writeError maps ledger errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *database.InsufficientStockError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &validationErrs):
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Fields: fieldErrors(validationErrs),
		})
	case errors.As(err, &stockErr):
		available := stockErr.Available
		respondJSON(w, http.StatusConflict, errorResponse{
			Error:     err.Error(),
			ItemID:    stockErr.ItemID,
			Requested: stockErr.Requested,
			Available: &available,
		})
	case errors.Is(err, database.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrContention):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "the item is busy, retry the request")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func fieldErrors(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			out[field] = "is required"
		case "gt":
			out[field] = fmt.Sprintf("must be greater than %s", fe.Param())
		case "gte", "min":
			out[field] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max":
			out[field] = fmt.Sprintf("must be at most %s", fe.Param())
		default:
			out[field] = "is invalid"
		}
	}
	return out
}

// jsonFieldName reports struct fields under their JSON names.
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func decodeJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return database.InvalidInputf("invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) decodeAndValidate(r *http.Request, dest interface{}) error {
	if err := decodeJSON(r, dest); err != nil {
		return err
	}
	return h.validator.Struct(dest)
}
