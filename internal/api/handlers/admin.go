package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

type AdminHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewAdminHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *AdminHandler {
	return &AdminHandler{db: db, minio: minio}
}

func (h *AdminHandler) ListIdentities(c *gin.Context) {
	identities, err := h.db.ListIdentities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(identities))
	for _, i := range identities {
		resp = append(resp, identityResponse(&i))
	}

	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

func (h *AdminHandler) GetIdentity(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}

	identity, err := h.db.Identity(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if identity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	embeddings, _ := h.db.CountEmbeddings(c.Request.Context(), id)

	c.JSON(http.StatusOK, gin.H{
		"identity":        identityResponse(identity),
		"embedding_count": embeddings,
	})
}

// GetIdentityImage proxies one enrollment source image from MinIO.
func (h *AdminHandler) GetIdentityImage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity id"})
		return
	}
	seq, err := strconv.Atoi(c.Param("seq"))
	if err != nil || seq < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image seq"})
		return
	}

	keys, err := h.db.EmbeddingSources(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if seq >= len(keys) || keys[seq] == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), keys[seq])
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (h *AdminHandler) ListEvents(c *gin.Context) {
	var q dto.EventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var identityID *uuid.UUID
	if q.IdentityID != "" {
		id, err := uuid.Parse(q.IdentityID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identity_id"})
			return
		}
		identityID = &id
	}

	var from, to *time.Time
	if q.From != "" {
		t, err := time.Parse(time.RFC3339, q.From)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		from = &t
	}
	if q.To != "" {
		t, err := time.Parse(time.RFC3339, q.To)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		to = &t
	}

	events, total, err := h.db.QueryAuthEvents(c.Request.Context(), q.Type, identityID, from, to, q.Limit, q.Offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.AuthEventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, AuthEventResponse(ev))
	}

	c.JSON(http.StatusOK, dto.EventListResponse{Events: resp, Total: total})
}

// AuthEventResponse converts a stored auth event to its API shape. Shared
// with the live WebSocket feed.
func AuthEventResponse(ev models.AuthEvent) dto.AuthEventResponse {
	return dto.AuthEventResponse{
		ID:         ev.ID,
		Type:       ev.Type,
		IdentityID: ev.IdentityID,
		Email:      ev.Email,
		Distance:   ev.Distance,
		Threshold:  ev.Threshold,
		CreatedAt:  ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}
