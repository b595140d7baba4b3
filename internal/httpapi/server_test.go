package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"darkdrop/internal/drop"
	"darkdrop/internal/model"
	"darkdrop/internal/testutil"
)

type testAPI struct {
	t      *testing.T
	svc    *drop.DropService
	server *Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	svc := drop.NewDropService(
		testutil.NewTestDatabase(t),
		testutil.NewTestBlobStore(),
		testutil.NewTestKeyRing(),
		nil,
		testutil.FixedClock(),
		testutil.NewStubIDGenerator(),
		drop.Options{PublicBaseURL: "https://drop.example.com"},
	)
	return &testAPI{t: t, svc: svc, server: NewServer(svc, nil)}
}

func (a *testAPI) account(id string, quota int64) {
	a.t.Helper()
	if _, err := a.svc.CreateAccount(context.Background(), drop.AccountRequest{ID: id, Name: strings.ToUpper(id), StorageQuota: quota}); err != nil {
		a.t.Fatalf("CreateAccount(%s) error = %v", id, err)
	}
}

// agent creates an agent with role on account and returns its API key.
func (a *testAPI) agent(accountID string, role model.Role) string {
	a.t.Helper()
	ag, err := a.svc.CreateAgent(context.Background(), "agent-"+string(role))
	if err != nil {
		a.t.Fatalf("CreateAgent() error = %v", err)
	}
	if _, err := a.svc.GrantPermission(context.Background(), accountID, model.AgentIdentity(ag.ID, ag.Name), role); err != nil {
		a.t.Fatalf("GrantPermission() error = %v", err)
	}
	return ag.APIKey
}

func (a *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	a.t.Helper()
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) request(method, target, apiKey string, body io.Reader) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, target, body)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	return a.do(req)
}

func (a *testAPI) upload(accountID, apiKey, name, content string, fields map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			a.t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		a.t.Fatal(err)
	}
	io.WriteString(fw, content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload/"+accountID, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", apiKey)
	return a.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	body := decode[errorBody](t, rec)
	if body.Error.Code != code {
		t.Errorf("error code = %q, want %q", body.Error.Code, code)
	}
	if body.Error.Message == "" {
		t.Error("error message is empty")
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := api.request(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Errorf("status field = %q, want ok", got)
	}
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	api.account("acme", 0)

	rec := api.request(http.MethodPost, "/auth/register", "", strings.NewReader(`{"email":"alice@example.com","password":"s3cret","name":"Alice"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	userID := decode[map[string]string](t, rec)["userId"]
	if _, err := api.svc.GrantPermission(context.Background(), "acme", model.UserIdentity(userID, "Alice"), model.RoleRead); err != nil {
		t.Fatalf("GrantPermission() error = %v", err)
	}

	rec = api.request(http.MethodPost, "/auth/login", "", strings.NewReader(`{"email":"alice@example.com","password":"wrong"}`))
	assertError(t, rec, http.StatusUnauthorized, CodeUnauthorized)

	rec = api.request(http.MethodPost, "/auth/login", "", strings.NewReader(`{"email":"alice@example.com","password":"s3cret"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	login := decode[struct {
		Token    string               `json:"token"`
		Accounts []membershipResponse `json:"accounts"`
	}](t, rec)
	if login.Token == "" {
		t.Fatal("login returned no token")
	}
	if len(login.Accounts) != 1 || login.Accounts[0].ID != "acme" || login.Accounts[0].Role != "read" {
		t.Errorf("login accounts = %+v", login.Accounts)
	}

	bearer := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("Authorization", "Bearer "+login.Token)
		return api.do(req)
	}

	rec = bearer(http.MethodGet, "/accounts/acme")
	if rec.Code != http.StatusOK {
		t.Fatalf("get account status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[accountResponse](t, rec); got.ID != "acme" || got.Status != "active" {
		t.Errorf("account = %+v", got)
	}

	rec = bearer(http.MethodPost, "/auth/logout")
	if rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rec.Code)
	}
	assertError(t, bearer(http.MethodGet, "/accounts"), http.StatusUnauthorized, CodeUnauthorized)
}

func TestRegister_badBody(t *testing.T) {
	api := newTestAPI(t)
	rec := api.request(http.MethodPost, "/auth/register", "", strings.NewReader("{not json"))
	assertError(t, rec, http.StatusBadRequest, CodeValidation)
}

func TestUnauthenticated(t *testing.T) {
	api := newTestAPI(t)
	for _, target := range []string{"/accounts", "/files/acme", "/download/id-1"} {
		t.Run(target, func(t *testing.T) {
			assertError(t, api.request(http.MethodGet, target, "", nil), http.StatusUnauthorized, CodeUnauthorized)
			assertError(t, api.request(http.MethodGet, target, "not-a-key", nil), http.StatusUnauthorized, CodeUnauthorized)
		})
	}
}

func TestFileLifecycle(t *testing.T) {
	api := newTestAPI(t)
	api.account("acme", 0)
	key := api.agent("acme", model.RoleAdmin)

	rec := api.upload("acme", key, "notes.txt", "first draft", map[string]string{"folder": "docs"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}
	up := decode[struct {
		FileID string       `json:"fileId"`
		File   fileResponse `json:"file"`
	}](t, rec)
	if up.File.Folder != "/docs" || up.File.Type != "agents" || up.File.Checksum != testutil.SHA256Hex([]byte("first draft")) {
		t.Errorf("uploaded file = %+v", up.File)
	}

	rec = api.request(http.MethodGet, "/download/"+up.FileID, key, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "first draft" {
		t.Errorf("download body = %q", rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "notes.txt") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	rec = api.upload("acme", key, "notes.txt", "second draft", map[string]string{"folder": "/docs/"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("second upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = api.request(http.MethodGet, "/files/acme?folder=/docs", key, nil)
	files := decode[struct {
		Files []fileResponse `json:"files"`
	}](t, rec).Files
	if len(files) != 1 || files[0].ID != up.FileID || files[0].Size != int64(len("second draft")) {
		t.Fatalf("list = %+v", files)
	}

	rec = api.request(http.MethodGet, "/files/acme/search?q=note", key, nil)
	if n := len(decode[struct {
		Files []fileResponse `json:"files"`
	}](t, rec).Files); n != 1 {
		t.Errorf("search returned %d files, want 1", n)
	}
	assertError(t, api.request(http.MethodGet, "/files/acme/search", key, nil), http.StatusBadRequest, CodeValidation)

	rec = api.request(http.MethodGet, "/files/"+up.FileID+"/versions", key, nil)
	versions := decode[struct {
		Versions []versionResponse `json:"versions"`
	}](t, rec).Versions
	if len(versions) != 1 || versions[0].VersionNumber != 1 {
		t.Fatalf("versions = %+v", versions)
	}

	rec = api.request(http.MethodPost, "/files/"+up.FileID+"/versions/"+versions[0].ID+"/restore", key, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = api.request(http.MethodGet, "/download/"+up.FileID, key, nil)
	if rec.Body.String() != "first draft" {
		t.Errorf("download after restore = %q, want first draft", rec.Body.String())
	}

	rec = api.request(http.MethodPost, "/files/"+up.FileID+"/share", key, nil)
	share := decode[map[string]string](t, rec)
	if !strings.HasPrefix(share["publicUrl"], "https://drop.example.com/public/") {
		t.Errorf("publicUrl = %q", share["publicUrl"])
	}
	rec = api.request(http.MethodGet, "/public/"+share["token"], "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "first draft" {
		t.Errorf("public download = %d %q", rec.Code, rec.Body.String())
	}

	rec = api.request(http.MethodGet, "/files/"+up.FileID+"/audit", key, nil)
	entries := decode[struct {
		Entries []auditResponse `json:"entries"`
	}](t, rec).Entries
	if len(entries) == 0 || entries[0].Action != string(model.AuditShare) {
		t.Errorf("audit = %+v", entries)
	}

	rec = api.request(http.MethodDelete, "/files/"+up.FileID, key, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}
	assertError(t, api.request(http.MethodGet, "/download/"+up.FileID, key, nil), http.StatusNotFound, CodeNotFound)
	assertError(t, api.request(http.MethodGet, "/public/"+share["token"], "", nil), http.StatusNotFound, CodeNotFound)
}

func TestUpload_errors(t *testing.T) {
	api := newTestAPI(t)
	api.account("acme", 4)
	writer := api.agent("acme", model.RoleWrite)
	reader := api.agent("acme", model.RoleRead)

	assertError(t, api.upload("acme", reader, "a.txt", "x", nil), http.StatusForbidden, CodeForbidden)
	assertError(t, api.upload("acme", writer, "a.txt", "too large", nil), http.StatusRequestEntityTooLarge, CodeCapacity)
	assertError(t, api.upload("acme", writer, "a.txt", "x", map[string]string{"type": "tape"}), http.StatusBadRequest, CodeValidation)
	assertError(t, api.upload("other", writer, "a.txt", "x", nil), http.StatusForbidden, CodeForbidden)

	req := httptest.NewRequest(http.MethodPost, "/upload/acme", strings.NewReader("plain body"))
	req.Header.Set("X-API-Key", writer)
	assertError(t, api.do(req), http.StatusBadRequest, CodeValidation)
}

func TestAuditLog_requiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	api.account("acme", 0)
	writer := api.agent("acme", model.RoleWrite)

	rec := api.upload("acme", writer, "a.txt", "x", nil)
	fileID := decode[map[string]any](t, rec)["fileId"].(string)
	assertError(t, api.request(http.MethodGet, "/files/"+fileID+"/audit", writer, nil), http.StatusForbidden, CodeForbidden)
}

func TestMetrics(t *testing.T) {
	api := newTestAPI(t)
	api.account("acme", 0)
	key := api.agent("acme", model.RoleRead)

	api.request(http.MethodGet, "/download/missing-1", key, nil)
	api.request(http.MethodGet, "/download/missing-2", key, nil)

	rec := api.request(http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	want := `darkdrop_http_requests_total{method="GET",route="/download/{fileID}",status="404"} 2`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %s\n%s", want, rec.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	assertError(t, api.request(http.MethodGet, "/nope", "", nil), http.StatusNotFound, CodeNotFound)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{drop.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthorized},
		{fmt.Errorf("wrapped: %w", drop.ErrForbidden), http.StatusForbidden, CodeForbidden},
		{drop.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{drop.ErrValidation, http.StatusBadRequest, CodeValidation},
		{drop.ErrIntegrity, http.StatusUnprocessableEntity, CodeIntegrity},
		{drop.ErrCapacity, http.StatusRequestEntityTooLarge, CodeCapacity},
		{fmt.Errorf("op: %w: %w", drop.ErrDependency, errors.New("disk full")), http.StatusServiceUnavailable, CodeUnavailable},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, code := statusFor(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("statusFor(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}

func TestWriteServiceError_hidesDependencyDetail(t *testing.T) {
	api := newTestAPI(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	api.server.writeServiceError(rec, req, fmt.Errorf("writing blob: %w: %w", drop.ErrDependency, errors.New("/srv/secret/path: disk full")))

	body := decode[errorBody](t, rec)
	if strings.Contains(body.Error.Message, "secret") {
		t.Errorf("message leaks cause: %q", body.Error.Message)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCredentials(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   drop.Credentials
	}{
		{"none", nil, drop.Credentials{}},
		{"bearer", map[string]string{"Authorization": "Bearer tok"}, drop.Credentials{BearerToken: "tok"}},
		{"lowercase scheme", map[string]string{"Authorization": "bearer tok"}, drop.Credentials{BearerToken: "tok"}},
		{"basic ignored", map[string]string{"Authorization": "Basic abc"}, drop.Credentials{}},
		{"api key", map[string]string{"X-API-Key": "key"}, drop.Credentials{APIKey: "key"}},
		{"both", map[string]string{"Authorization": "Bearer tok", "X-API-Key": "key"}, drop.Credentials{BearerToken: "tok", APIKey: "key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := credentials(req); got != tt.want {
				t.Errorf("credentials() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
