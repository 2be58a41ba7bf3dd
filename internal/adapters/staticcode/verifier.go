package staticcode

// Package staticcode is a fixed-code verifier for demo and development
// environments. Every phone (or one configured phone) accepts a single
// preconfigured code; nothing is stored or consumed.

import (
	"context"
	"errors"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

// Verifier accepts one fixed code, optionally for one fixed phone only.
type Verifier struct {
	code  string
	phone string
}

// New creates a verifier accepting code for any phone. When phone is
// non-empty, only that phone (in normalized form) is accepted.
func New(code, phone string) (*Verifier, error) {
	if code == "" {
		return nil, errors.New("static code must not be empty")
	}
	return &Verifier{code: code, phone: identity.NormalizePhone(phone)}, nil
}

// Verify reports whether the presented code matches the configured one.
func (v *Verifier) Verify(_ context.Context, phone, code string) (bool, error) {
	if v.phone != "" && identity.NormalizePhone(phone) != v.phone {
		return false, nil
	}
	return code == v.code, nil
}

// Issue returns the fixed code unchanged. It exists so demo deployments can
// run the full request-code flow without a backing store.
func (v *Verifier) Issue(_ context.Context, _ string) (string, error) {
	return v.code, nil
}
