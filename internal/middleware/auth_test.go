package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResolver map[string]string

func (f fakeResolver) ResolveOwnerToken(_ context.Context, token string) (string, error) {
	owner, ok := f[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return owner, nil
}

func TestRequireOwner(t *testing.T) {
	resolver := fakeResolver{"tok-abc": "owner-1"}

	var seenOwner string
	handler := RequireOwner(resolver, func(w http.ResponseWriter, r *http.Request) {
		seenOwner = OwnerID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer tok-abc")
	rec := httptest.NewRecorder()
	handler(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "owner-1", seenOwner)
}

func TestRequireOwnerRejects(t *testing.T) {
	resolver := fakeResolver{"tok-abc": "owner-1"}
	handler := RequireOwner(resolver, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	cases := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic dXNlcg==",
		"empty token":   "Bearer ",
		"unknown token": "Bearer nope",
	}
	for name, auth := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if auth != "" {
			r.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestOwnerIDEmptyWithoutAuth(t *testing.T) {
	assert.Equal(t, "", OwnerID(context.Background()))
}
