package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/internal/storage"
)

func png(size int) []byte {
	return append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, bytes.Repeat([]byte{0}, size)...)
}

type stubExtractor struct {
	vec models.EmbeddingVector
}

func (s *stubExtractor) ExtractMany(_ context.Context, images [][]byte) ([]models.EmbeddingVector, error) {
	out := make([]models.EmbeddingVector, len(images))
	for i := range out {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubExtractor) ExtractOne(_ context.Context, _ []byte) (models.EmbeddingVector, error) {
	return s.vec, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer := session.NewIssuer("test-secret", time.Hour)
	cookies := session.Cookies{Name: "facegate_session"}
	svc := faceauth.NewService(storage.NewMemoryStore(), &stubExtractor{vec: models.EmbeddingVector{1, 0, 0}}, issuer, nil, nil, faceauth.Options{
		Threshold:      0.5,
		Dimension:      3,
		ExtractTimeout: time.Second,
		MaxImages:      4,
		MaxImageBytes:  1 << 20,
	})

	r := gin.New()
	authH := handlers.NewAuthHandler(svc, cookies)
	r.POST("/v1/auth/register", authH.Register)
	r.POST("/v1/auth/login", authH.Login)
	r.POST("/v1/auth/login/face", authH.LoginFace)
	r.POST("/v1/auth/logout", authH.Logout)
	r.GET("/v1/auth/me", api.RequireSession(cookies, svc.ValidateSession), authH.Me)
	return r
}

func registerRequest(t *testing.T, email string, imageCount int) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("display_name", "Ada")
	_ = mw.WriteField("email", email)
	_ = mw.WriteField("password", "pw123456")
	for i := 0; i < imageCount; i++ {
		part, err := mw.CreateFormFile("images", "face.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(png(16)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRegister(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registerRequest(t, "ada@example.com", 2))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Identity struct {
			Email string `json:"email"`
		} `json:"identity"`
		EmbeddingCount int `json:"embedding_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Identity.Email != "ada@example.com" || resp.EmbeddingCount != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// Same email again conflicts.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, registerRequest(t, "ada@example.com", 1))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", rec.Code)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	router := newTestRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("email", "ada@example.com")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRegister_NoImages(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registerRequest(t, "ada@example.com", 0))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRegister_TooManyImages(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registerRequest(t, "ada@example.com", 5))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registerRequest(t, "ada@example.com", 1))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}

	body, _ := json.Marshal(map[string]string{"email": "ada@example.com", "password": "pw123456"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "facegate_session=") {
		t.Fatal("login must set the session cookie")
	}

	// Wrong password.
	body, _ = json.Marshal(map[string]string{"email": "ada@example.com", "password": "nope"})
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}
}

func TestLoginFace(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, registerRequest(t, "ada@example.com", 1))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "probe.png")
	_, _ = part.Write(png(16))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login/face", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Token    string   `json:"token"`
		Distance *float64 `json:"distance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("session token missing")
	}
	if resp.Distance == nil || *resp.Distance != 0 {
		t.Fatalf("distance = %v, want 0", resp.Distance)
	}
}

func TestMe(t *testing.T) {
	router := newTestRouter(t)

	// Unauthenticated.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, registerRequest(t, "ada@example.com", 1))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d", rec.Code)
	}

	body, _ := json.Marshal(map[string]string{"email": "ada@example.com", "password": "pw123456"})
	loginReq := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")

	loginRec := httptest.NewRecorder()
	router.ServeHTTP(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("login: %d", loginRec.Code)
	}

	// Cookie auth.
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Cookie", loginRec.Header().Get("Set-Cookie"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Identity struct {
			Email string `json:"email"`
		} `json:"identity"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Identity.Email != "ada@example.com" {
		t.Fatalf("me email = %q", resp.Identity.Email)
	}

	// Bearer auth with the token from the login body.
	var loginResp struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(loginRec.Body.Bytes(), &loginResp)

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer me status = %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatal("logout must expire the cookie")
	}
}
