package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/dharsanguruparan/propshield/internal/auth"
	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/config"
	"github.com/dharsanguruparan/propshield/internal/intake"
	"github.com/dharsanguruparan/propshield/internal/memstore"
	"github.com/dharsanguruparan/propshield/internal/status"
)

const anonKey = "anon-key"

type testAPI struct {
	handler http.Handler
	store   *memstore.Store
}

func newTestAPI(t *testing.T, providers ...auth.Provider) *testAPI {
	t.Helper()
	if len(providers) == 0 {
		providers = []auth.Provider{auth.GitHubProvider("client", "secret")}
	}
	cfg := &config.Config{
		BackendURL:   "https://backend.test",
		AnonKey:      anonKey,
		APIURL:       "https://api.test",
		MaxFileSize:  1 << 10,
		MaxFiles:     3,
		SignedURLTTL: time.Hour,
	}
	store := memstore.New()
	log := zap.NewNop()
	b := backend.NewMemory(store, cfg.BackendURL, log)
	authSvc := auth.New(store, store, auth.Options{
		JWTSecret:   []byte("jwt"),
		StateSecret: []byte("state"),
		SessionTTL:  time.Hour,
		BcryptCost:  bcrypt.MinCost,
		Providers:   providers,
	}, log)
	orch := intake.New(b, log, intake.WithLimits(cfg.MaxFiles, cfg.MaxFileSize))
	tracker := status.NewTracker(store, store, time.Millisecond, log)
	srv := New(cfg, authSvc, b, orch, tracker, log)
	return &testAPI{handler: srv.Handler(), store: store}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("apikey", anonKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) signUp(t *testing.T, email string) string {
	t.Helper()
	body := `{"email":"` + email + `","password":"correct-horse","fullName":"Test"}`
	rec := a.do(t, http.MethodPost, "/auth/signup", "", []byte(body), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sess auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess.AccessToken
}

type formFile struct {
	name, contentType, content string
}

func multipartBody(t *testing.T, docType string, files ...formFile) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if docType != "" {
		require.NoError(t, mw.WriteField("document_type", docType))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealthzNeedsNoKey(t *testing.T) {
	a := newTestAPI(t)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(`{}`))
	req.Header.Set("apikey", "wrong")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUpAndSignIn(t *testing.T) {
	a := newTestAPI(t)
	a.signUp(t, "owner@example.com")

	rec := a.do(t, http.MethodPost, "/auth/signup", "", []byte(`{"email":"owner@example.com","password":"correct-horse"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/auth/signin", "", []byte(`{"email":"owner@example.com","password":"nope-nope"}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.ErrInvalidCredentials.Error(), errorMessage(t, rec))

	rec = a.do(t, http.MethodPost, "/auth/signin", "", []byte(`{"email":"owner@example.com","password":"correct-horse"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	var sess auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "owner@example.com", sess.User.Email)

	rec = a.do(t, http.MethodPost, "/auth/signout", sess.AccessToken, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestProtectedRoutesNeedBearer(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/verifications", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(t, http.MethodGet, "/verifications", "not-a-jwt", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitAndTrack(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUp(t, "owner@example.com")

	body, ct := multipartBody(t, "encumbrance_certificate",
		formFile{"ec.pdf", "application/pdf", "%PDF-1.4 ec"},
		formFile{"site.jpg", "image/jpeg", "jpeg bytes"},
	)
	rec := a.do(t, http.MethodPost, "/verifications", token, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res intake.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "ec.pdf", res.Documents[0].FileName)
	assert.Equal(t, "ec", string(res.Documents[0].DocumentType))
	assert.Equal(t, "image/jpeg", res.Documents[1].MimeType)

	rec = a.do(t, http.MethodGet, "/verifications/"+res.VerificationID.String(), token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var progress struct {
		Percent   int `json:"percent"`
		Documents []struct {
			ID string `json:"id"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	assert.Equal(t, 20, progress.Percent)
	assert.Len(t, progress.Documents, 2)

	rec = a.do(t, http.MethodGet, "/verifications", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = a.do(t, http.MethodGet, "/files", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var files []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 2)

	rec = a.do(t, http.MethodGet, "/documents/"+res.Documents[0].ID.String()+"/signed-url", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var signed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signed))
	assert.NotEmpty(t, signed["url"])
}

func TestSubmitValidation(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUp(t, "owner@example.com")

	tests := []struct {
		name    string
		docType string
		files   []formFile
		want    error
	}{
		{"no type", "", []formFile{{"a.pdf", "application/pdf", "x"}}, intake.ErrMissingType},
		{"unknown type", "passport", []formFile{{"a.pdf", "application/pdf", "x"}}, intake.ErrUnknownType},
		{"no files", "sale_deed", nil, intake.ErrNoFiles},
		{"too large", "sale_deed", []formFile{{"big.pdf", "application/pdf", strings.Repeat("x", 2<<10)}}, intake.ErrFileTooLarge},
		{"too many", "sale_deed", []formFile{
			{"1.pdf", "application/pdf", "x"},
			{"2.pdf", "application/pdf", "x"},
			{"3.pdf", "application/pdf", "x"},
			{"4.pdf", "application/pdf", "x"},
		}, intake.ErrTooManyFiles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := multipartBody(t, tt.docType, tt.files...)
			rec := a.do(t, http.MethodPost, "/verifications", token, body, ct)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 0, a.store.Objects.Len())
}

func TestOtherUsersVerificationIsHidden(t *testing.T) {
	a := newTestAPI(t)
	owner := a.signUp(t, "owner@example.com")
	other := a.signUp(t, "other@example.com")

	body, ct := multipartBody(t, "sale_deed", formFile{"deed.pdf", "application/pdf", "%PDF"})
	rec := a.do(t, http.MethodPost, "/verifications", owner, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	var res intake.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = a.do(t, http.MethodGet, "/verifications/"+res.VerificationID.String(), other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodGet, "/documents/"+res.Documents[0].ID.String()+"/signed-url", other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodGet, "/verifications/not-a-uuid", other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProviderStart(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/auth/providers/gitlab", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/auth/providers/github", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var authz map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authz))
	assert.Contains(t, authz["url"], "code_challenge=")
	assert.Contains(t, authz["url"], "redirect_uri=https%3A%2F%2Fapi.test%2Fauth%2Fcallback")
	assert.NotEmpty(t, authz["state"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, verifierCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	rec = a.do(t, http.MethodGet, "/auth/callback?code=abc&state="+authz["state"], "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "callback without the verifier cookie")
}

// stubGitHub serves the token, user and email endpoints of a provider that
// accepts the code "good-code".
func stubGitHub(t *testing.T) auth.Provider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "provider-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"login": "octo", "email": "octo@example.com"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return auth.Provider{
		Name: "github",
		Config: oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:   srv.URL + "/authorize",
				TokenURL:  srv.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		UserInfoURL: srv.URL + "/user",
		EmailsURL:   srv.URL + "/emails",
	}
}

func TestProviderCallbackFromBrowser(t *testing.T) {
	a := newTestAPI(t, stubGitHub(t))

	rec := a.do(t, http.MethodGet, "/auth/providers/github", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var authz map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authz))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	// the provider redirect carries the cookie but no apikey header
	callback := func(code string, withCookie bool) *httptest.ResponseRecorder {
		q := url.Values{"code": {code}, "state": {authz["state"]}}
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
		if withCookie {
			req.AddCookie(cookies[0])
		}
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		return rec
	}

	rec = callback("good-code", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sign-in was not started from this browser", errorMessage(t, rec))

	rec = callback("good-code", true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess auth.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.AccessToken)
	assert.Equal(t, "octo@example.com", sess.User.Email)
	assert.Equal(t, "github", sess.User.Provider)

	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, verifierCookie, cleared[0].Name)
	assert.Negative(t, cleared[0].MaxAge)

	rec = a.do(t, http.MethodGet, "/verifications", sess.AccessToken, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProviderCallbackRejectsForgedState(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: verifierCookie, Value: "verifier"})
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, auth.ErrInvalidState.Error(), errorMessage(t, rec))
}

func TestListProviders(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/auth/providers", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"github"}, body["providers"])

	req := httptest.NewRequest(http.MethodGet, "/auth/providers", nil)
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusForUnknownErrors(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadRequest, statusFor(&intake.ValidationError{Field: "files", Message: "x"}))
}
