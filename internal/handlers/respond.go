package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pliu/smartaid/internal/logging"
	"github.com/pliu/smartaid/internal/middleware"
	"github.com/pliu/smartaid/internal/validation"
)

const maxJSONBody = 1 << 20

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("Could not marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Warn().Err(err).Msg("Could not write response body")
	}
}

// respondWithError writes {"error": msg}. err is logged and never sent to
// the client.
func respondWithError(w http.ResponseWriter, r *http.Request, code int, msg string, err error) {
	if err != nil {
		event := logging.Ctx(r.Context()).Warn()
		if code >= http.StatusInternalServerError {
			event = logging.Ctx(r.Context()).Error()
		}
		event.Err(err).Int("status", code).Str("path", r.URL.Path).Msg(msg)
	}
	respondWithJSON(w, code, errorResponse{Error: msg})
}

func respondWithFieldErrors(w http.ResponseWriter, fields validation.FieldErrors) {
	respondWithJSON(w, http.StatusBadRequest, errorResponse{
		Error:  "Invalid input.",
		Fields: fields,
	})
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, http.StatusInternalServerError, "An internal error occurred.", err)
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure
// it writes the 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		respondWithError(w, r, http.StatusBadRequest, "Invalid request body.", fmt.Errorf("decode request body: %w", err))
		return false
	}
	return validate(w, r, dst)
}

func validate(w http.ResponseWriter, r *http.Request, v any) bool {
	err := validation.Struct(v)
	if err == nil {
		return true
	}
	var fields validation.FieldErrors
	if errors.As(err, &fields) {
		respondWithFieldErrors(w, fields)
		return false
	}
	internalError(w, r, err)
	return false
}

// currentUser returns the id set by the auth middleware. Routes behind Auth
// always have one; the 401 here covers handlers mounted without it.
func currentUser(w http.ResponseWriter, r *http.Request) (int, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "Authentication credentials were not provided.", nil)
		return 0, false
	}
	return userID, true
}

// pathID parses a numeric mux variable. A malformed id is answered as 404.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		respondWithError(w, r, http.StatusNotFound, "Not found.", nil)
		return 0, false
	}
	return id, true
}
