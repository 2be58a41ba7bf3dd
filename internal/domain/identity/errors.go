package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// IdPError is a recoverable failure of an IdP call: a non-2xx response, a
// transport failure, or an unparseable body. Code and Description carry the
// IdP's own error/error_description fields when the IdP supplied them.
type IdPError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	// Status is the HTTP status of the IdP response, or 0 for transport failures.
	Status int `json:"-"`
}

func (e *IdPError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("idp: %s: %s", e.Code, e.Description)
	}
	return "idp: " + e.Code
}

// IsConflict reports whether the error is an IdP-level conflict, such as the
// losing side of two concurrent create-user calls for the same username.
func (e *IdPError) IsConflict() bool {
	return e.Status == http.StatusConflict
}

// AsIdPError unwraps err into an *IdPError if it is one.
func AsIdPError(err error) (*IdPError, bool) {
	var idpErr *IdPError
	if errors.As(err, &idpErr) {
		return idpErr, true
	}
	return nil, false
}
