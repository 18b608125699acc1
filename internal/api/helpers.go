package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/listenupapp/listenup-reader/internal/errors"
)

// maxBodyBytes caps request bodies. The largest body is the settings record.
const maxBodyBytes = 64 << 10

// decodeJSON decodes the request body into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.Validation("request body is required")
		}
		return errors.Validation("invalid request body").WithCause(err)
	}
	return s.validator.Validate(dst)
}
