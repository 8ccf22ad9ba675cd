package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fieldcore/fault"
)

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// jsonFault maps a fault kind onto an HTTP status. The body never
// carries internal error text, only what the fault message already
// exposes.
func (h *Handlers) jsonFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindInvalidInput:
		status = http.StatusBadRequest
	case fault.KindInvalidTransition, fault.KindConflict:
		status = http.StatusConflict
	case fault.KindGuardFailed:
		status = http.StatusUnprocessableEntity
	case fault.KindUnauthorized:
		status = http.StatusUnauthorized
	case fault.KindDependencyUnavailable:
		status = http.StatusServiceUnavailable
	}

	body := map[string]any{"error": err.Error(), "kind": string(fault.KindOf(err))}
	if fe, ok := fault.As(err); ok {
		if fe.PredicateID != "" {
			body["predicate_id"] = fe.PredicateID
		}
		if fe.CorrelationID != "" {
			body["correlation_id"] = fe.CorrelationID
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryInt64(r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v, err == nil
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}

// queryDate parses YYYY-MM-DD, defaulting to today.
func queryDate(r *http.Request, key string) (time.Time, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}
