package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/pkg/dto"
)

const timeFormat = "2006-01-02T15:04:05Z"

// IdentityIDKey is the gin context key the session middleware stores the
// authenticated identity id under.
const IdentityIDKey = "identity_id"

type AuthHandler struct {
	svc     *faceauth.Service
	cookies session.Cookies
}

func NewAuthHandler(svc *faceauth.Service, cookies session.Cookies) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies}
}

// Register enrolls a new identity from a multipart form:
// display_name, email, password and 1..N "images" file parts.
func (h *AuthHandler) Register(c *gin.Context) {
	displayName := c.PostForm("display_name")
	email := c.PostForm("email")
	password := c.PostForm("password")
	if displayName == "" || email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display_name, email and password are required"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	images, err := readFileParts(form.File["images"])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image failed"})
		return
	}

	identity, embeddings, err := h.svc.Enroll(c.Request.Context(), displayName, email, password, images)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterResponse{
		Identity:       identityResponse(identity),
		EmbeddingCount: embeddings,
	})
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, identity, err := h.svc.AuthenticateByPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.cookies.Set(c.Writer, sess)
	c.JSON(http.StatusOK, sessionResponse(sess, identity, nil))
}

// LoginFace authenticates with a single probe image ("image" file part)
// against the whole enrolled population.
func (h *AuthHandler) LoginFace(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	sess, identity, result, err := h.svc.AuthenticateByFace(c.Request.Context(), image)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.cookies.Set(c.Writer, sess)
	c.JSON(http.StatusOK, sessionResponse(sess, identity, result))
}

// Logout clears the session cookie. Tokens are stateless, so the server
// keeps no session record to revoke.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.cookies.Clear(c.Writer)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Me returns the identity behind the current session.
func (h *AuthHandler) Me(c *gin.Context) {
	identityID, ok := c.Get(IdentityIDKey)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	identity, err := h.svc.Identity(c.Request.Context(), identityID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		// Valid token for an identity that no longer exists.
		h.cookies.Clear(c.Writer)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	c.JSON(http.StatusOK, dto.MeResponse{Identity: identityResponse(identity)})
}

func readFileParts(files []*multipart.FileHeader) ([][]byte, error) {
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func identityResponse(i *models.Identity) dto.IdentityResponse {
	return dto.IdentityResponse{
		ID:          i.ID,
		DisplayName: i.DisplayName,
		Email:       i.Email,
		CreatedAt:   i.CreatedAt.UTC().Format(timeFormat),
	}
}

func sessionResponse(s *models.Session, i *models.Identity, m *models.MatchResult) dto.SessionResponse {
	resp := dto.SessionResponse{
		Identity:  identityResponse(i),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if m != nil {
		resp.Distance = m.Distance
		resp.Threshold = &m.Threshold
	}
	return resp
}

// writeAuthError maps the service error taxonomy to HTTP statuses.
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, faceauth.ErrInvalidMediaType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, faceauth.ErrPayloadTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, faceauth.ErrTooManyImages), errors.Is(err, faceauth.ErrNoImages):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, faceauth.ErrNoFaceDetected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no faces found in submitted images"})
	case errors.Is(err, faceauth.ErrDuplicateIdentity):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, faceauth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, faceauth.ErrNoMatch):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "face not recognized"})
	case errors.Is(err, faceauth.ErrExtractorUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face processing temporarily unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
