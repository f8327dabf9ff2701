package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"pizzaplan/internal/engine"
	"pizzaplan/internal/pref"
	"pizzaplan/internal/problem"
	"pizzaplan/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeSolveError maps pipeline errors to problem responses: bad input is the
// caller's fault, undecodable solver output is ours.
func writeSolveError(w http.ResponseWriter, err error, instance string) {
	var verr *pref.ValidationError
	var berr *problem.BuildError
	var derr *engine.DecodeError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, http.StatusBadRequest, "Invalid solve input", verr.Msg, instance)
	case errors.As(err, &berr):
		writeProblem(w, http.StatusUnprocessableEntity, "Unsolvable order shape", berr.Msg, instance)
	case errors.As(err, &derr):
		writeProblem(w, http.StatusInternalServerError, "Solver output decode failed", derr.Msg, instance)
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), instance)
	default:
		writeProblem(w, http.StatusInternalServerError, "Solve failed", err.Error(), instance)
	}
}
