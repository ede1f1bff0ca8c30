package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ParseJSON decodes the request body into dest. A declared Content-Type must
// be a JSON type; requests without one are accepted so curl and internal
// tooling keep working. Exactly one JSON value is allowed in the body.
func ParseJSON(r *http.Request, dest interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !isJSONType(ct) {
		return fmt.Errorf("unsupported content type %q", ct)
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("request body holds more than one JSON value")
	}
	return nil
}

func isJSONType(ct string) bool {
	mediaType, _, _ := strings.Cut(ct, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// ParseJSONOrError decodes the body into dest and answers 400 itself on
// failure. Handlers return immediately on false.
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// GetPathVars returns the mux route variables for the request. On a matched
// route every declared variable is present, so handlers index the map
// directly.
func GetPathVars(r *http.Request) map[string]string {
	return mux.Vars(r)
}

// ParsePathString reads one route variable and errors when it is absent, for
// callers outside a mux match where GetPathVars gives no guarantee.
func ParsePathString(r *http.Request, key string) (string, error) {
	if v := mux.Vars(r)[key]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("path parameter %s is missing", key)
}

// ParseQueryString reads a query parameter, falling back to defaultVal when
// it is absent or empty.
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return defaultVal
}

// ParseQueryBool reads a boolean query parameter, falling back to defaultVal
// when it is absent.
func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("query parameter %s is not a boolean: %q", key, s)
	}
	return v, nil
}

// RequireNonEmpty answers 400 and returns false when a required string field
// is empty. The message names the field the way the request body spells it.
func RequireNonEmpty(w http.ResponseWriter, value, fieldName string) bool {
	if value == "" {
		WriteBadRequest(w, fmt.Sprintf("%s is required", fieldName))
		return false
	}
	return true
}

// RequirePositive answers 400 and returns false when a numeric field is zero
// or negative.
func RequirePositive(w http.ResponseWriter, value int64, fieldName string) bool {
	if value <= 0 {
		WriteBadRequest(w, fmt.Sprintf("%s must be positive", fieldName))
		return false
	}
	return true
}
