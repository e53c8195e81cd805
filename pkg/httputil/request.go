package httputil

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParsePathStringOrError extracts a string path parameter and writes error on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return val, true
}

// RequireQuery returns the named query parameters, or writes a 400 listing
// the missing ones
func RequireQuery(w http.ResponseWriter, r *http.Request, keys ...string) ([]string, bool) {
	query := r.URL.Query()
	values := make([]string, len(keys))
	var missing []string
	for i, key := range keys {
		values[i] = query.Get(key)
		if values[i] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		WriteBadRequest(w, fmt.Sprintf("missing query parameters: %v", missing))
		return nil, false
	}
	return values, true
}
