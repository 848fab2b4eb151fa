//go:build integration

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/textgate/textgate/internal/account"
	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/clock"
	"github.com/textgate/textgate/internal/governance"
	"github.com/textgate/textgate/internal/governance/audit"
	"github.com/textgate/textgate/internal/governance/quota"
	mw "github.com/textgate/textgate/internal/middleware"
	"github.com/textgate/textgate/internal/testutil"
	"github.com/textgate/textgate/internal/textops"
	"github.com/textgate/textgate/internal/throttle"
	"github.com/textgate/textgate/internal/tier"
	"github.com/textgate/textgate/internal/users"
)

type e2e struct {
	t   *testing.T
	srv *httptest.Server
}

func newE2E(t *testing.T) *e2e {
	t.Helper()
	pool := testutil.StartPostgres(t)
	clk := clock.System()

	textSvc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/summarize":
			json.NewEncoder(w).Encode(map[string]string{"summary": "short"})
		case "/translate":
			json.NewEncoder(w).Encode(map[string]string{"translated_text": "court"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(textSvc.Close)

	userSvc := users.NewService(users.NewRepository(pool))
	codec, err := auth.NewTokenCodec(strings.Repeat("k", 32), time.Hour, clk)
	require.NoError(t, err)
	resolver := auth.NewResolver(codec, userSvc)

	usageRepo := quota.NewRepository(pool)
	tracker := quota.NewTracker(usageRepo, clk, quota.Limits{
		Monthly:  map[quota.Action]int{quota.ActionSummary: 2, quota.ActionTranslation: 2},
		Daily:    50,
		Location: time.UTC,
	})
	enforcer := quota.NewEnforcer(tracker, nil)
	client := textops.NewClient(textSvc.URL, 5*time.Second)
	text := textops.NewHandler(client, client, quota.NewRecorder(usageRepo, clk, nil), enforcer)
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	accounts := account.NewHandler(userSvc, tracker, hasher, nil, clk)
	authH := auth.NewHandler(userSvc, codec, hasher)

	router := NewRouter(RouterConfig{
		Throttle: mw.Throttle(throttle.NewMemory(throttle.Config{Points: 1000, Window: time.Minute}, clk)),
	}, Handlers{
		Register:         authH.Register,
		Login:            authH.Login,
		Profile:          accounts.Profile,
		UpdateProfile:    accounts.UpdateProfile,
		ChangePassword:   accounts.ChangePassword,
		DeleteAccount:    accounts.DeleteAccount,
		Stats:            accounts.Stats,
		Usage:            accounts.Usage,
		Upgrade:          accounts.Upgrade,
		Downgrade:        accounts.Downgrade,
		Summarize:        text.Summarize,
		Translate:        text.Translate,
		TranslateSummary: text.TranslateSummary,
		BulkTranslate:    text.BulkTranslate,
		Languages:        text.Languages,
		ListAuditLogs:    governance.NewHandler(audit.NewRepository(pool)).ListAuditLogs,
		RequireAuth:      auth.Middleware(resolver),
		OptionalAuth:     auth.OptionalMiddleware(resolver),
		RequirePro:       tier.Middleware(users.TierPro, nil),
		SummaryQuota:     enforcer.Middleware(quota.ActionSummary),
		TranslationQuota: enforcer.Middleware(quota.ActionTranslation),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &e2e{t: t, srv: srv}
}

func (e *e2e) do(method, path, token string, body any) (int, map[string]any) {
	e.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *e2e) register(email string) string {
	e.t.Helper()
	status, body := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Tester", "email": email, "password": "secret1",
	})
	require.Equal(e.t, http.StatusCreated, status, body)
	return body["data"].(map[string]any)["token"].(string)
}

var article = map[string]any{"text": strings.Repeat("Long enough article text for a summary. ", 3)}

func TestEndToEnd_FreeTierLifecycle(t *testing.T) {
	e := newE2E(t)
	token := e.register(fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano()))

	status, _ := e.do(http.MethodPost, "/api/summary", "", article)
	assert.Equal(t, http.StatusUnauthorized, status)

	for i := range 2 {
		status, body := e.do(http.MethodPost, "/api/summary", token, article)
		require.Equal(t, http.StatusOK, status, body)
		assert.EqualValues(t, 1-i, body["data"].(map[string]any)["remaining"])
	}

	status, body := e.do(http.MethodPost, "/api/summary", token, article)
	require.Equal(t, http.StatusTooManyRequests, status)
	usage := body["usage"].(map[string]any)
	assert.EqualValues(t, 2, usage["current"])
	assert.EqualValues(t, 2, usage["limit"])
	assert.Equal(t, "summary", usage["action"])

	status, body = e.do(http.MethodGet, "/api/user/usage", token, nil)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["current_usage"].(map[string]any)["summary"])
	assert.EqualValues(t, 2, data["daily_usage"])

	translate := map[string]any{"text": "short", "target_language": "fr"}
	status, _ = e.do(http.MethodPost, "/api/summary/translate", token, translate)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = e.do(http.MethodPut, "/api/user/upgrade", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(http.MethodPost, "/api/summary", token, article)
	assert.Equal(t, http.StatusOK, status, "paid tiers are not metered monthly")

	status, body = e.do(http.MethodPost, "/api/summary/translate", token, translate)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "court", body["data"].(map[string]any)["translated_text"])
}

func TestEndToEnd_AnonymousTranslation(t *testing.T) {
	e := newE2E(t)

	status, body := e.do(http.MethodPost, "/api/translation", "", map[string]any{"text": "hello", "target_language": "fr"})
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 49, body["data"].(map[string]any)["remaining"])

	status, _ = e.do(http.MethodPost, "/api/translation", "Bearer-less-garbage", map[string]any{"text": "hello", "target_language": "fr"})
	assert.Equal(t, http.StatusOK, status, "bad credentials on an optional route fall back to anonymous")
}

func TestEndToEnd_BulkTranslationQuota(t *testing.T) {
	e := newE2E(t)
	token := e.register(fmt.Sprintf("bulk-%d@example.com", time.Now().UnixNano()))

	status, body := e.do(http.MethodPost, "/api/translation/bulk-translate", token, map[string]any{
		"texts": []string{"one", "two", "three"}, "target_language": "fr",
	})
	require.Equal(t, http.StatusTooManyRequests, status, body)
	assert.EqualValues(t, 0, body["usage"].(map[string]any)["current"])

	status, body = e.do(http.MethodPost, "/api/translation/bulk-translate", token, map[string]any{
		"texts": []string{"one", "two"}, "target_language": "fr",
	})
	require.Equal(t, http.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["total_translated"])
	assert.EqualValues(t, 0, data["remaining"])

	status, _ = e.do(http.MethodPost, "/api/translation", token, map[string]any{"text": "hello", "target_language": "fr"})
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestEndToEnd_DeletedAccountTokenIsRejected(t *testing.T) {
	e := newE2E(t)
	email := fmt.Sprintf("gone-%d@example.com", time.Now().UnixNano())
	token := e.register(email)

	status, _ := e.do(http.MethodPost, "/api/translation", token, map[string]any{"text": "hello", "target_language": "fr"})
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(http.MethodPut, "/api/user/password", token, map[string]any{
		"current_password": "secret1", "new_password": "secret2",
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = e.do(http.MethodDelete, "/api/user/account", token, map[string]any{"password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, status, "old password no longer matches")

	status, body := e.do(http.MethodDelete, "/api/user/account", token, map[string]any{"password": "secret2"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = e.do(http.MethodGet, "/api/user/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "user not found", body["message"])

	status, _ = e.do(http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "secret2"})
	assert.Equal(t, http.StatusUnauthorized, status)
}
