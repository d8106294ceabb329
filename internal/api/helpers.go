package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// zapErr is a one-line shorthand for the error field every handler's
// failure-path log line carries.
func zapErr(err error) zap.Field {
	return zap.Error(err)
}

// decodeJSONBody decodes a request body into dst. A missing or empty body
// is not an error: handlers that accept an optional body treat it as a
// zero-value request.
func decodeJSONBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
