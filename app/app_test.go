package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/eduquiz/go-auth"
	"github.com/eduquiz/go-auth/app"
	"github.com/eduquiz/go-auth/config"
	"github.com/eduquiz/go-auth/mailer"
	"github.com/eduquiz/go-auth/repository"
)

var (
	csrfField = regexp.MustCompile(`name="_token" value="([^"]+)"`)
	setupLink = regexp.MustCompile(`http://localhost:8080/\S+`)
)

type fixture struct {
	app    *app.App
	outbox *mailer.ConsoleSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Auth.SigningKey = "app-test-signing-key-with-at-least-32-bytes"
	cfg.Server.BaseURL = "http://localhost:8080"

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = repository.Migrate(ctx, db)
	require.NoError(t, err)

	outbox := mailer.NewConsoleSender(io.Discard)
	m, err := mailer.New(outbox, cfg.Mail.FromEmail, cfg.Mail.FromName)
	require.NoError(t, err)

	a, err := app.New(app.Deps{
		Config:    cfg,
		DB:        db,
		Mailer:    m,
		Logger:    auth.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		AccessLog: io.Discard,
	})
	require.NoError(t, err)

	return &fixture{app: a, outbox: outbox}
}

func (f *fixture) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := f.app.Fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// csrfToken renders target and returns the form token on the page
func (f *fixture) csrfToken(t *testing.T, target string, cookies ...*http.Cookie) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, body := f.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	m := csrfField.FindStringSubmatch(body)
	require.Len(t, m, 2, "no csrf field on %s", target)
	return m[1]
}

func postForm(target string, values url.Values, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func sessionFrom(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == "eduquiz_session" && c.Value != "" {
			return &http.Cookie{Name: c.Name, Value: c.Value}
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestApp_ProvisionAndActivateTeacher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := auth.SeedAdmin(ctx, f.app.Repo, "", "")
	require.NoError(t, err)
	require.True(t, created)

	// admin signs in through the form
	token := f.csrfToken(t, "/login")
	resp, _ := f.do(t, postForm("/login", url.Values{
		"_token":   {token},
		"email":    {auth.DefaultAdminEmail},
		"password": {auth.DefaultAdminPassword},
	}))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/Admin", resp.Header.Get("Location"))
	admin := sessionFrom(t, resp)

	// admin adds a teacher
	token = f.csrfToken(t, "/Admin/Teachers", admin)
	resp, _ = f.do(t, postForm("/Admin/Teachers", url.Values{
		"_token":     {token},
		"first_name": {"Tess"},
		"last_name":  {"Teacher"},
		"email":      {"t@x.com"},
	}, admin))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/Admin/Teachers", resp.Header.Get("Location"))

	msg, ok := f.outbox.Last()
	require.True(t, ok)
	assert.Equal(t, "t@x.com", msg.To.Address)
	assert.Equal(t, mailer.SetupSubject, msg.Subject)

	link := setupLink.FindString(msg.Text)
	require.NotEmpty(t, link)
	setup, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, auth.TeacherSetupPath, setup.Path)

	// the new account cannot sign in yet
	resp, _ = f.do(t, jsonLogin("t@x.com", "P@ssw0rd1"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// the teacher follows the link and picks a password
	token = f.csrfToken(t, setup.RequestURI())
	resp, _ = f.do(t, postForm(setup.Path, url.Values{
		"_token":           {token},
		"token":            {setup.Query().Get("token")},
		"email":            {setup.Query().Get("email")},
		"password":         {"P@ssw0rd1"},
		"confirm_password": {"P@ssw0rd1"},
	}))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	// the link is spent
	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, setup.RequestURI(), nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "Invalid or expired token")

	resp, body = f.do(t, jsonLogin("t@x.com", "P@ssw0rd1"))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var login map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &login))
	assert.Equal(t, "/Teacher", login["redirect"])

	teacher := sessionFrom(t, resp)
	req := httptest.NewRequest(http.MethodGet, "/Admin/Teachers", nil)
	req.AddCookie(teacher)
	resp, _ = f.do(t, req)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/access-denied", resp.Header.Get("Location"))
}

func TestApp_AdminPagesRequireSession(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/Admin/Students", nil))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestApp_FormsRequireCSRFToken(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, postForm("/login", url.Values{
		"email":    {"a@x.com"},
		"password": {"whatever"},
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, postForm("/login", url.Values{
		"_token":   {"forged"},
		"email":    {"a@x.com"},
		"password": {"whatever"},
	}))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestApp_Healthz(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestApp_Metrics(t *testing.T) {
	f := newFixture(t)

	f.do(t, jsonLogin("ghost@x.com", "whatever"))

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "eduquiz_auth_logins_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestApp_RootRedirectsToLogin(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestApp_UnknownRoute(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "404")
}

func TestApp_RequiresConfigAndDB(t *testing.T) {
	_, err := app.New(app.Deps{})
	assert.Error(t, err)
}

func jsonLogin(email, password string) *http.Request {
	raw, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}
