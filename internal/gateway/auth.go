package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/modernreader/sensoria/internal/fault"
)

// subjectKey carries the authenticated API key through the request context.
type subjectKeyType struct{}

var subjectKey subjectKeyType

// withSubject stamps the authenticated key onto the context.
func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Subject returns the authenticated API key for the request, or "" when the
// route is unprotected.
func Subject(r *http.Request) string {
	s, _ := r.Context().Value(subjectKey).(string)
	return s
}

// keySet is the set of accepted API keys, parsed once from a comma-separated
// list at startup.
type keySet map[string]struct{}

func parseKeys(csv string) keySet {
	ks := make(keySet)
	for _, k := range strings.Split(csv, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			ks[k] = struct{}{}
		}
	}
	return ks
}

// credential extracts the API key from X-API-Key or a bearer token.
func credential(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(tok)
	}
	return ""
}

// authenticate resolves and validates the request credential.
func (ks keySet) authenticate(r *http.Request) (string, error) {
	key := credential(r)
	if key == "" {
		return "", fault.New(fault.Unauthorized, "gateway: missing credential").
			WithHint("pass X-API-Key or a bearer token")
	}
	if _, ok := ks[key]; !ok {
		return "", fault.New(fault.Unauthorized, "gateway: unknown api key")
	}
	return key, nil
}
