package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	os.Setenv(JWTSecretEnv, "test-secret")
	os.Exit(m.Run())
}

func setupHttptestServer() (*httptest.Server, *memDatabase, *fakeRemote) {
	db := newMemDatabase()
	remote := newFakeRemote()

	s := NewAPIServer(
		NewUserService(db, bcrypt.MinCost),
		NewImageService(db, db, remote),
		"localhost:3000",
	)

	return httptest.NewServer(s.routes()), db, remote
}

func registerViaAPI(t *testing.T, serverURL, username string) *http.Response {
	t.Helper()

	b, err := json.Marshal(HandleRegisterRequest{
		Username:  username,
		Password:  "secret123",
		FirstName: "First",
		LastName:  "Last",
		Email:     username + "@example.com",
	})
	assert.NoError(t, err)

	resp, err := http.Post(serverURL+"/api/users/register", "application/json", bytes.NewBuffer(b))
	assert.NoError(t, err)

	return resp
}

func loginViaAPI(t *testing.T, serverURL, username string) string {
	t.Helper()

	b, err := json.Marshal(HandleLoginRequest{Username: username, Password: "secret123"})
	assert.NoError(t, err)

	resp, err := http.Post(serverURL+"/api/users/login", "application/json", bytes.NewBuffer(b))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var v HandleLoginResponse
	err = json.NewDecoder(resp.Body).Decode(&v)
	assert.NoError(t, err)

	return v.Token
}

func loadImageForm(t *testing.T) (*bytes.Buffer, *multipart.Writer) {
	t.Helper()

	var bf bytes.Buffer
	w := multipart.NewWriter(&bf)

	fw, err := w.CreateFormFile("image", "test.png")
	assert.NoError(t, err)

	_, err = io.Copy(fw, bytes.NewBufferString("not-really-a-png"))
	assert.NoError(t, err)

	return &bf, w
}

func uploadViaAPI(t *testing.T, serverURL, token string) *http.Response {
	t.Helper()

	bf, mw := loadImageForm(t)
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/images/upload", bf)
	assert.NoError(t, err)

	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)

	return resp
}

func TestAPIServer_HandleRegister(t *testing.T) {
	ts, db, _ := setupHttptestServer()
	defer ts.Close()

	resp := registerViaAPI(t, ts.URL, "alice")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var user User
	err := json.NewDecoder(resp.Body).Decode(&user)
	assert.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.PasswordHash)

	stored := db.users["alice"]
	assert.NotEqual(t, "secret123", stored.PasswordHash)

	// Duplicate registration is rejected and writes nothing, and the body
	// carries the reason.
	resp = registerViaAPI(t, ts.URL, "alice")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, len(db.users))

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "username is already taken")
}

func TestAPIServer_ServerConfigServesRequests(t *testing.T) {
	db := newMemDatabase()
	remote := newFakeRemote()

	s := NewAPIServer(
		NewUserService(db, bcrypt.MinCost),
		NewImageService(db, db, remote),
		"localhost:3000",
	)

	srv := s.server()
	assert.GreaterOrEqual(t, srv.ReadTimeout, time.Second)
	assert.GreaterOrEqual(t, srv.ReadHeaderTimeout, time.Second)
	assert.GreaterOrEqual(t, srv.WriteTimeout, time.Second)
	assert.GreaterOrEqual(t, srv.IdleTimeout, time.Second)

	// Serve through the production server config, timeouts included, not a
	// bare mux.
	ts := httptest.NewUnstartedServer(nil)
	ts.Config = srv
	ts.Start()
	defer ts.Close()

	resp := registerViaAPI(t, ts.URL, "alice")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, len(db.users))
}

func TestAPIServer_HandleRegisterInvalidPayload(t *testing.T) {
	ts, db, _ := setupHttptestServer()
	defer ts.Close()

	requests := []HandleRegisterRequest{
		{Username: "al", Password: "short"},
		{Username: "alice", Password: "secret123", LastName: "Last", Email: "alice@example.com"},
		{Username: "alice", Password: "secret123", FirstName: "First", Email: "alice@example.com"},
		{Username: "alice", Password: "secret123", FirstName: "First", LastName: "Last"},
		{Username: "alice", Password: "secret123", FirstName: "First", LastName: "Last", Email: "not-an-email"},
	}

	for _, request := range requests {
		b, err := json.Marshal(request)
		assert.NoError(t, err)

		resp, err := http.Post(ts.URL+"/api/users/register", "application/json", bytes.NewBuffer(b))
		assert.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	assert.Equal(t, 0, len(db.users))
}

func TestAPIServer_HandleLoginUnauthorized(t *testing.T) {
	ts, _, _ := setupHttptestServer()
	defer ts.Close()

	registerViaAPI(t, ts.URL, "alice")

	b, err := json.Marshal(HandleLoginRequest{Username: "alice", Password: "invalid-password"})
	assert.NoError(t, err)

	resp, err := http.Post(ts.URL+"/api/users/login", "application/json", bytes.NewBuffer(b))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIServer_ImageLifecycle(t *testing.T) {
	ts, db, remote := setupHttptestServer()
	defer ts.Close()

	registerViaAPI(t, ts.URL, "alice")
	registerViaAPI(t, ts.URL, "bob")

	aliceToken := loginViaAPI(t, ts.URL, "alice")
	bobToken := loginViaAPI(t, ts.URL, "bob")

	// Upload as alice.
	resp := uploadViaAPI(t, ts.URL, aliceToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded HandleUploadImageResponse
	err := json.NewDecoder(resp.Body).Decode(&uploaded)
	assert.NoError(t, err)
	assert.Equal(t, "dh1", uploaded.DeleteHash)
	assert.Equal(t, "https://host/1", uploaded.Link)
	assert.Equal(t, 1, db.imageCount())

	imageURL := ts.URL + "/api/images/" + strconv.FormatInt(uploaded.ID, 10)

	// View as alice returns the uploaded link.
	req, err := http.NewRequest(http.MethodGet, imageURL, http.NoBody)
	assert.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)

	resp, err = http.DefaultClient.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var viewed HandleViewImageResponse
	err = json.NewDecoder(resp.Body).Decode(&viewed)
	assert.NoError(t, err)
	assert.Equal(t, uploaded.Link, viewed.Link)

	// View as bob is forbidden and leaks no link.
	req, err = http.NewRequest(http.MethodGet, imageURL, http.NoBody)
	assert.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bobToken)

	resp, err = http.DefaultClient.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.NotContains(t, string(body), uploaded.Link)

	// Delete as bob is forbidden and keeps the row.
	deleteURL := ts.URL + "/api/images/" + uploaded.DeleteHash

	req, err = http.NewRequest(http.MethodDelete, deleteURL, http.NoBody)
	assert.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bobToken)

	resp, err = http.DefaultClient.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, db.imageCount())

	// Delete as alice removes the remote image, then the row.
	req, err = http.NewRequest(http.MethodDelete, deleteURL, http.NoBody)
	assert.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)

	resp, err = http.DefaultClient.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"dh1"}, remote.deleted)
	assert.Equal(t, 0, db.imageCount())

	// A later view of the deleted image fails.
	req, err = http.NewRequest(http.MethodGet, imageURL, http.NoBody)
	assert.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+aliceToken)

	resp, err = http.DefaultClient.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAPIServer_UploadRemoteFailure(t *testing.T) {
	ts, db, remote := setupHttptestServer()
	defer ts.Close()

	registerViaAPI(t, ts.URL, "alice")
	token := loginViaAPI(t, ts.URL, "alice")

	remote.uploadErr = &RemoteError{Op: "upload", Status: "503 Service Unavailable"}

	resp := uploadViaAPI(t, ts.URL, token)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 0, db.imageCount())
}

func TestAPIServer_HandleUploadImageUnauthorized(t *testing.T) {
	ts, _, _ := setupHttptestServer()
	defer ts.Close()

	resp := uploadViaAPI(t, ts.URL, "invalid-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIServer_HandleImageUnauthorized(t *testing.T) {
	ts, _, _ := setupHttptestServer()
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/images/1", http.NoBody)
	assert.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+"invalid-token")

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
