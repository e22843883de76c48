package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/atulm/billdrop/internal/config"
	"github.com/atulm/billdrop/internal/database"
	"github.com/atulm/billdrop/internal/healthcheck"
	"github.com/atulm/billdrop/internal/pdf"
	"github.com/atulm/billdrop/internal/provider"
	"github.com/atulm/billdrop/internal/sweep"
	"github.com/atulm/billdrop/pkg/models"
)

// stubFactory satisfies provider.Factory without talking to any provider.
type stubFactory struct{}

func (stubFactory) MailReader(ctx context.Context, account *models.LinkedAccount) (provider.MailReader, error) {
	return nil, fmt.Errorf("no credentials in tests: %w", provider.ErrAuthentication)
}

func (stubFactory) MailReaderByID(ctx context.Context, accountID string) (provider.MailReader, error) {
	return nil, fmt.Errorf("no credentials in tests: %w", provider.ErrAuthentication)
}

func (stubFactory) StorageWriterByID(ctx context.Context, accountID string) (provider.StorageWriter, error) {
	return nil, fmt.Errorf("no credentials in tests: %w", provider.ErrAuthentication)
}

type testServer struct {
	server  *Server
	db      *database.DB
	sweeper *sweep.Sweeper
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	cfg := &config.Config{
		ListenAddr:    ":0",
		BaseURL:       "http://localhost:8080",
		SessionSecret: "0123456789abcdef0123456789abcdef",
		SweepInterval: time.Hour,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sweeper := sweep.New(sweep.Deps{
		Config:    cfg,
		DB:        db,
		Providers: stubFactory{},
		Decryptor: pdf.NewDecryptor(),
		Health:    healthcheck.New("", logger),
		Logger:    logger,
	})

	server, err := NewServer(Deps{
		Config:    cfg,
		DB:        db,
		Providers: stubFactory{},
		Sweeper:   sweeper,
		Logger:    logger,
	})
	require.NoError(t, err)

	return &testServer{server: server, db: db, sweeper: sweeper}
}

func (ts *testServer) do(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.server.echo.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postForm(path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echoContentType, echoFormContentType)
	return ts.do(req, cookies)
}

func (ts *testServer) postJSON(path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set(echoContentType, "application/json")
	return ts.do(req, cookies)
}

const (
	echoContentType     = "Content-Type"
	echoFormContentType = "application/x-www-form-urlencoded"
)

// signupAndLogin registers a user and returns their session cookies.
func (ts *testServer) signupAndLogin(t *testing.T, name, email, password string) []*http.Cookie {
	t.Helper()

	rec := ts.postForm("/signup", url.Values{
		"name":     {name},
		"email":    {email},
		"password": {password},
	}, nil)
	require.Equal(t, http.StatusFound, rec.Code)

	rec = ts.postForm("/login", url.Values{
		"email":    {email},
		"password": {password},
	}, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

func (ts *testServer) seedAccount(t *testing.T, userID string, accountType models.AccountType, providerID string) *models.LinkedAccount {
	t.Helper()

	account := &models.LinkedAccount{
		UserID:      userID,
		AccountType: accountType,
		AccountID:   providerID,
	}
	require.NoError(t, account.SetToken(&oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))
	require.NoError(t, ts.db.UpsertLinkedAccount(context.Background(), account))
	return account
}

func (ts *testServer) userID(t *testing.T, email string) string {
	t.Helper()
	user, err := ts.db.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	return user.ID
}

func TestSignupLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHome_RedirectsAnonymous(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := newTestServer(t)
	ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")

	rec := ts.postForm("/login", url.Values{
		"email":    {"alice@example.com"},
		"password": {"wrong"},
	}, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?msg=")
	assert.Empty(t, rec.Result().Cookies())
}

func TestSignup_DuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")

	rec := ts.postForm("/signup", url.Values{
		"name":     {"Impostor"},
		"email":    {"alice@example.com"},
		"password": {"different"},
	}, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), url.QueryEscape("User already exists"))
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/logout", nil), cookies)
	require.Equal(t, http.StatusFound, rec.Code)

	// The expired cookie no longer authenticates.
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/", nil), rec.Result().Cookies())
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestAPI_RequiresLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/linked_accounts", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/run_task", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListAccounts(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	userID := ts.userID(t, "alice@example.com")

	ts.seedAccount(t, userID, models.AccountTypeGmail, "google-id-1")
	ts.seedAccount(t, userID, models.AccountTypeGoogleDrive, "google-id-1")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/linked_accounts", nil), cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		LinkedAccounts []models.LinkedAccount `json:"linked_accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.LinkedAccounts, 2)
}

func TestListAccounts_ScopedToUser(t *testing.T) {
	ts := newTestServer(t)

	aliceCookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	bobCookies := ts.signupAndLogin(t, "Bob", "bob@example.com", "hunter22")

	ts.seedAccount(t, ts.userID(t, "alice@example.com"), models.AccountTypeGmail, "google-id-1")

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/linked_accounts", nil), bobCookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		LinkedAccounts []models.LinkedAccount `json:"linked_accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.LinkedAccounts)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/linked_accounts", nil), aliceCookies)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.LinkedAccounts, 1)
}

func TestCreateRule(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	userID := ts.userID(t, "alice@example.com")

	gmail := ts.seedAccount(t, userID, models.AccountTypeGmail, "google-id-1")
	drive := ts.seedAccount(t, userID, models.AccountTypeGoogleDrive, "google-id-1")

	rec := ts.postJSON("/api/linked_accounts/"+gmail.ID+"/inbox_rules", map[string]string{
		"name":                   "electricity",
		"email_from":             "billing@power.example",
		"email_subject":          "invoice",
		"destination_folder_id":  "folder-1",
		"destination_account_id": drive.ID,
	}, cookies)
	require.Equal(t, http.StatusCreated, rec.Code)

	var rule models.InboxRule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, gmail.ID, rule.AccountID)

	rules, err := ts.db.GetRulesForAccount(context.Background(), gmail.ID)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestCreateRule_RejectsWrongCapabilities(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	userID := ts.userID(t, "alice@example.com")

	gmail := ts.seedAccount(t, userID, models.AccountTypeGmail, "google-id-1")
	drive := ts.seedAccount(t, userID, models.AccountTypeGoogleDrive, "google-id-1")

	// Storage account as the source.
	rec := ts.postJSON("/api/linked_accounts/"+drive.ID+"/inbox_rules", map[string]string{
		"name":                   "bad",
		"destination_account_id": drive.ID,
	}, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Mail account as the destination.
	rec = ts.postJSON("/api/linked_accounts/"+gmail.ID+"/inbox_rules", map[string]string{
		"name":                   "bad",
		"destination_account_id": gmail.ID,
	}, cookies)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRule_RejectsForeignAccounts(t *testing.T) {
	ts := newTestServer(t)

	ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	bobCookies := ts.signupAndLogin(t, "Bob", "bob@example.com", "hunter22")

	aliceID := ts.userID(t, "alice@example.com")
	gmail := ts.seedAccount(t, aliceID, models.AccountTypeGmail, "google-id-1")
	drive := ts.seedAccount(t, aliceID, models.AccountTypeGoogleDrive, "google-id-1")

	// Bob cannot create rules on Alice's accounts.
	rec := ts.postJSON("/api/linked_accounts/"+gmail.ID+"/inbox_rules", map[string]string{
		"name":                   "hijack",
		"destination_account_id": drive.ID,
	}, bobCookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRule(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	userID := ts.userID(t, "alice@example.com")

	gmail := ts.seedAccount(t, userID, models.AccountTypeGmail, "google-id-1")
	drive := ts.seedAccount(t, userID, models.AccountTypeGoogleDrive, "google-id-1")

	rule := &models.InboxRule{
		UserID:               userID,
		AccountID:            gmail.ID,
		Name:                 "electricity",
		EmailFrom:            "billing@power.example",
		EmailSubject:         "invoice",
		DestinationAccountID: drive.ID,
	}
	require.NoError(t, ts.db.CreateRule(context.Background(), rule))

	rec := ts.postJSON("/api/linked_accounts/"+gmail.ID+"/inbox_rules/"+rule.ID, map[string]string{
		"name":                   "power",
		"email_from":             "billing@power.example",
		"email_subject":          "statement",
		"attachment_password":    "secret",
		"destination_account_id": drive.ID,
	}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := ts.db.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "power", got.Name)
	assert.Equal(t, "statement", got.EmailSubject)
	assert.Equal(t, "secret", got.AttachmentPassword)
}

func TestUpdateRule_UnknownRule(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	userID := ts.userID(t, "alice@example.com")

	gmail := ts.seedAccount(t, userID, models.AccountTypeGmail, "google-id-1")
	drive := ts.seedAccount(t, userID, models.AccountTypeGoogleDrive, "google-id-1")

	rec := ts.postJSON("/api/linked_accounts/"+gmail.ID+"/inbox_rules/no-such-rule", map[string]string{
		"name":                   "power",
		"destination_account_id": drive.ID,
	}, cookies)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRules_ScopedToUser(t *testing.T) {
	ts := newTestServer(t)

	aliceCookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")
	bobCookies := ts.signupAndLogin(t, "Bob", "bob@example.com", "hunter22")

	aliceID := ts.userID(t, "alice@example.com")
	gmail := ts.seedAccount(t, aliceID, models.AccountTypeGmail, "google-id-1")
	drive := ts.seedAccount(t, aliceID, models.AccountTypeGoogleDrive, "google-id-1")

	rule := &models.InboxRule{
		UserID:               aliceID,
		AccountID:            gmail.ID,
		Name:                 "electricity",
		EmailFrom:            "billing@power.example",
		EmailSubject:         "invoice",
		DestinationAccountID: drive.ID,
	}
	require.NoError(t, ts.db.CreateRule(context.Background(), rule))

	var resp struct {
		InboxRules []models.InboxRule `json:"inbox_rules"`
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/linked_accounts/"+gmail.ID+"/inbox_rules", nil), aliceCookies)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.InboxRules, 1)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/linked_accounts/"+gmail.ID+"/inbox_rules", nil), bobCookies)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.InboxRules)
}

func TestRunTask(t *testing.T) {
	ts := newTestServer(t)
	cookies := ts.signupAndLogin(t, "Alice", "alice@example.com", "hunter22")

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/api/run_task", nil), cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ok", rec.Body.String())

	// Triggering again while one is pending is fine.
	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/run_task", nil), cookies)
	assert.Equal(t, http.StatusOK, rec.Code)
}
