package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// maxJSONBody caps JSON request bodies. Image payloads arrive as multipart
// and are limited separately by the handlers.
const maxJSONBody = 1 << 20

// ParseJSON decodes the request body into dest, rejecting oversized bodies
// and trailing garbage after the JSON value.
func ParseJSON(r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid JSON: unexpected data after body")
	}
	return nil
}

// ParseJSONOrError decodes JSON and answers 400 on failure.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(r, dest)
	if err == nil {
		return true
	}
	WriteBadRequest(w, err.Error())
	return false
}

// ParsePathString returns the named mux path variable.
func ParsePathString(r *http.Request, key string) (string, error) {
	if v, ok := mux.Vars(r)[key]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing path parameter: %s", key)
}

// ParsePathStringOrError returns the named path variable, answering 400
// when it is absent.
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := ParsePathString(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return v, true
}

// ParseQueryInt parses an integer query parameter, returning defaultVal when
// the parameter is absent.
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for query param %s: %s", key, raw)
	}
	return v, nil
}
