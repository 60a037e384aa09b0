package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/api"
	"github.com/artisanhq/atelier/internal/app"
	iauth "github.com/artisanhq/atelier/internal/auth"
	"github.com/artisanhq/atelier/internal/cache"
	sharedtestutil "github.com/artisanhq/atelier/internal/database/testutil"
	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/internal/storage"
	"github.com/artisanhq/atelier/pkg/crypto"
	"github.com/artisanhq/atelier/pkg/mail"
	"github.com/artisanhq/atelier/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory
// database, cache and object store for handler tests.
type Env struct {
	T         *testing.T
	DB        *gorm.DB
	Router    *gin.Engine
	JWT       *iauth.JWTService
	Objects   *MemoryObjectStore
	Mailer    *RecordingMailer
	Refresher *storage.Refresher
}

// NewEnv provisions a fresh handler test environment with migrations and
// seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "atelier-test",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "atelier-test",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
		Storage: app.StorageConfig{
			ArtworkBucket: "artworks",
			AvatarBucket:  "avatars",
		},
		Invites: app.InviteConfig{
			BaseURL: "https://atelier.test",
		},
		Provision: app.ProvisionConfig{
			Token: "test-provision-token",
		},
	}

	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	objects := NewMemoryObjectStore()
	mailer := &RecordingMailer{}
	signer := storage.NewURLSigner(&StaticPresigner{TTL: time.Hour}, store)
	refresher := storage.NewRefresher(signer)
	t.Cleanup(refresher.Close)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		Config:    cfg,
		JWT:       jwtSvc,
		Sessions:  sessionSvc,
		Store:     store,
		Objects:   objects,
		Signer:    signer,
		Mailer:    mailer,
		Refresher: refresher,
	})
	require.NoError(t, err)

	return &Env{
		T:         t,
		DB:        db,
		Router:    router,
		JWT:       jwtSvc,
		Objects:   objects,
		Mailer:    mailer,
		Refresher: refresher,
	}
}

// ProvisionToken returns the shared secret accepted by the provisioning
// endpoint in tests.
func (e *Env) ProvisionToken() string {
	return "test-provision-token"
}

// CreateUser inserts a verified, active user with a profile and returns it.
func (e *Env) CreateUser(password string) *models.User {
	return e.createAccount(password, models.RoleUser)
}

// CreateAdmin inserts a verified, active admin and returns it.
func (e *Env) CreateAdmin(password string) *models.User {
	return e.createAccount(password, models.RoleAdmin)
}

func (e *Env) createAccount(password, role string) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	now := time.Now().UTC()
	user := &models.User{
		Email:           role + "-" + uuid.NewString() + "@example.com",
		Password:        hashed,
		Role:            role,
		IsActive:        true,
		EmailVerifiedAt: &now,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	require.NoError(e.T, e.DB.Create(&models.Profile{
		UserID: user.ID,
		Name:   "Test " + role,
	}).Error)
	return user
}

// TokenPair mirrors the handler login response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens TokenPair       `json:"tokens"`
	User   json.RawMessage `json:"user"`
}

// Login authenticates with email and password and returns the issued tokens.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// MultipartRequest executes a multipart form request with the supplied text
// fields and file parts.
func (e *Env) MultipartRequest(method, path string, fields map[string]string, files map[string]FilePart, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for name, value := range fields {
		require.NoError(e.T, writer.WriteField(name, value))
	}
	for name, part := range files {
		fw, err := writer.CreateFormFile(name, part.Name)
		require.NoError(e.T, err)
		_, err = fw.Write(part.Content)
		require.NoError(e.T, err)
	}
	require.NoError(e.T, writer.Close())

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// FilePart is a file attached to a MultipartRequest.
type FilePart struct {
	Name    string
	Content []byte
}

// MemoryObjectStore is an in-memory stand-in for the S3-compatible object
// store.
type MemoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: make(map[string][]byte)}
}

func (m *MemoryObjectStore) Upload(_ context.Context, bucket, path string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+path] = data
	return nil
}

func (m *MemoryObjectStore) Remove(_ context.Context, bucket, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+path)
	return nil
}

// Object returns the stored bytes for bucket/path and whether it exists.
func (m *MemoryObjectStore) Object(bucket, path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+path]
	return data, ok
}

// Len reports how many objects are stored.
func (m *MemoryObjectStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// StaticPresigner mints deterministic URLs without talking to a real object
// store.
type StaticPresigner struct {
	TTL time.Duration
}

func (p *StaticPresigner) PresignURL(_ context.Context, bucket, path string, expiry time.Duration) (string, time.Time, error) {
	if p.TTL > 0 {
		expiry = p.TTL
	}
	return fmt.Sprintf("https://cdn.test/%s/%s", bucket, path), time.Now().Add(expiry), nil
}

// RecordingMailer captures outbound messages for assertions.
type RecordingMailer struct {
	mu       sync.Mutex
	Messages []mail.Message
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return nil
}

// Sent returns a copy of the captured messages.
func (m *RecordingMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.Messages))
	copy(out, m.Messages)
	return out
}
