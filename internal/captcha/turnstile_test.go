package captcha

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realty/site/internal/config"
)

const (
	inquiryScope = "POST /v1/inquiry"
	loginScope   = "POST /v1/admin/login"
)

func TestPass_BoundToVisitorAndRoute(t *testing.T) {
	v := NewTurnstileVerifier(&config.Config{JwtSecret: "captcha-secret"})
	visitor := Visitor{IP: "1.2.3.4", Fingerprint: "fp", Session: "spa"}

	pass, err := v.IssuePass(visitor, inquiryScope, time.Minute)
	require.NoError(t, err)

	assert.True(t, v.CheckPass(pass, visitor, inquiryScope))
	assert.False(t, v.CheckPass(pass, visitor, loginScope), "pass must not unlock another route")
	assert.False(t, v.CheckPass(pass, Visitor{IP: "5.6.7.8", Fingerprint: "fp", Session: "spa"}, inquiryScope))
	assert.False(t, v.CheckPass(pass, Visitor{IP: "1.2.3.4", Fingerprint: "other", Session: "spa"}, inquiryScope))
}

func TestPass_RejectsExpiredAndForeign(t *testing.T) {
	v := NewTurnstileVerifier(&config.Config{JwtSecret: "captcha-secret"})
	other := NewTurnstileVerifier(&config.Config{JwtSecret: "someone-else"})
	visitor := Visitor{IP: "1.2.3.4"}

	expired, err := v.IssuePass(visitor, inquiryScope, -time.Minute)
	require.NoError(t, err)
	assert.False(t, v.CheckPass(expired, visitor, inquiryScope))

	foreign, err := other.IssuePass(visitor, inquiryScope, time.Minute)
	require.NoError(t, err)
	assert.False(t, v.CheckPass(foreign, visitor, inquiryScope))

	assert.False(t, v.CheckPass("not-a-jwt", visitor, inquiryScope))
}

func TestVerify_PostsFormToSiteVerify(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = map[string]string{
			"secret":   r.PostForm.Get("secret"),
			"response": r.PostForm.Get("response"),
			"remoteip": r.PostForm.Get("remoteip"),
			"idem":     r.PostForm.Get("idempotency_key"),
		}
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("response") == "solved" {
			_, _ = w.Write([]byte(`{"success":true,"hostname":"example.com"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(&config.Config{CloudflareTurnstileSecretKey: "ts-secret", CloudflareSiteVerifyURL: srv.URL})

	ok, err := v.Verify(context.Background(), "solved", Visitor{IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ts-secret", got["secret"])
	assert.Equal(t, "solved", got["response"])
	assert.Equal(t, "1.2.3.4", got["remoteip"])
	assert.NotEmpty(t, got["idem"])

	ok, err = v.Verify(context.Background(), "wrong", Visitor{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewTurnstileVerifier(&config.Config{CloudflareTurnstileSecretKey: "ts-secret", CloudflareSiteVerifyURL: srv.URL})
	ok, err := v.Verify(context.Background(), "solved", Visitor{})
	assert.Error(t, err)
	assert.False(t, ok)

	unconfigured := NewTurnstileVerifier(&config.Config{})
	ok, err = unconfigured.Verify(context.Background(), "anything", Visitor{})
	require.NoError(t, err)
	assert.True(t, ok)
}
