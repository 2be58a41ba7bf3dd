package token

// Package token decodes bearer-token claims for authorization decisions.
//
// No signature verification happens here. The service sits behind an edge
// proxy that only forwards Authorization headers for already-verified tokens;
// claims are decoded for role checks, never for trust establishment. The
// service must not be deployed directly reachable from untrusted networks.

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/phonegate/phonegate/internal/domain/identity"
)

// ErrMalformedToken is returned when a bearer token is missing, lacks the
// "Bearer " prefix, or does not decode into a claims mapping.
var ErrMalformedToken = errors.New("malformed bearer token")

const bearerPrefix = "Bearer "

// DecoderOptions configures claim locations for a Decoder.
type DecoderOptions struct {
	// RolePaths are JMESPath expressions probed in order for the roles claim.
	// The first expression yielding a string list wins; no merging happens
	// across paths. Defaults to realm_access.roles then roles.
	RolePaths []string

	// SubjectClaim is the claim holding the principal identifier.
	// Defaults to user_id.
	SubjectClaim string
}

// Decoder extracts and decodes the claims segment of bearer tokens.
type Decoder struct {
	rolePaths    []jmespath.JMESPath
	subjectClaim string
}

// NewDecoder compiles the configured claim paths into a Decoder.
func NewDecoder(opts DecoderOptions) (*Decoder, error) {
	paths := opts.RolePaths
	if len(paths) == 0 {
		paths = []string{"realm_access.roles", "roles"}
	}

	compiled := make([]jmespath.JMESPath, 0, len(paths))
	for _, p := range paths {
		expr, err := jmespath.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile roles path %q: %w", p, err)
		}
		compiled = append(compiled, expr)
	}

	subject := opts.SubjectClaim
	if subject == "" {
		subject = "user_id"
	}

	return &Decoder{rolePaths: compiled, subjectClaim: subject}, nil
}

// FromAuthorizationHeader extracts the raw token from an Authorization header
// value. Returns ErrMalformedToken if the header is empty or not a Bearer
// credential.
func FromAuthorizationHeader(header string) (string, error) {
	if header == "" || !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMalformedToken
	}
	return header[len(bearerPrefix):], nil
}

// Decode splits a raw token into its three dot-separated segments and decodes
// the middle (claims) segment. The header and signature segments are ignored.
func (d *Decoder) Decode(raw string) (identity.ClaimSet, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, ErrMalformedToken
	}

	var claims identity.ClaimSet
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// DecodeRequest decodes the claims of the request's bearer token. An absent
// or malformed token yields an empty ClaimSet rather than an error so that
// public endpoints stay reachable for anonymous callers.
func (d *Decoder) DecodeRequest(r *http.Request) identity.ClaimSet {
	raw, err := FromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return identity.ClaimSet{}
	}
	claims, err := d.Decode(raw)
	if err != nil {
		return identity.ClaimSet{}
	}
	return claims
}

// Roles probes the configured role paths in order and returns the first
// string list found, or an empty slice when no path matches.
func (d *Decoder) Roles(claims identity.ClaimSet) []string {
	for _, expr := range d.rolePaths {
		result, err := expr.Search(map[string]any(claims))
		if err != nil || result == nil {
			continue
		}
		if roles, ok := toStringSlice(result); ok {
			return roles
		}
	}
	return []string{}
}

// Subject returns the principal identifier claim, or empty string when absent.
func (d *Decoder) Subject(claims identity.ClaimSet) string {
	if v, ok := claims[d.subjectClaim].(string); ok {
		return v
	}
	return ""
}

// toStringSlice converts a decoded JSON value into a string slice.
func toStringSlice(v any) ([]string, bool) {
	switch vals := v.(type) {
	case []string:
		return vals, true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
