// Package server exposes chat turns and data entry over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketrag/internal/catalog"
	"marketrag/internal/domain"
	"marketrag/internal/service"
	"marketrag/internal/session"
	"marketrag/internal/store"
	"marketrag/internal/zlog"
)

// ChatPort is the chat service as seen by the handlers.
type ChatPort interface {
	Handle(ctx context.Context, sess *session.Session, text string) (service.Reply, error)
	SubmitVendor(ctx context.Context, sess *session.Session, in catalog.VendorInput) catalog.Result
	SubmitProduct(ctx context.Context, sess *session.Session, in catalog.ProductInput) catalog.Result
}

// Lookups are the catalog reads served directly from the catalog.
type Lookups interface {
	LastVendor(ctx context.Context) (store.Vendor, bool, error)
	LastProduct(ctx context.Context) (store.Product, bool, error)
	Vendor(ctx context.Context, id string) (store.Vendor, bool, error)
	ListVendors(ctx context.Context) ([]store.Vendor, error)
	Categories(ctx context.Context) ([]string, error)
}

type Handler struct {
	chat     ChatPort
	lookups  Lookups
	sessions *session.Registry
}

func NewHandler(chat ChatPort, lookups Lookups, sessions *session.Registry) *Handler {
	return &Handler{chat: chat, lookups: lookups, sessions: sessions}
}

// NewRouter registers the API routes. An empty origins list allows any origin.
func NewRouter(h *Handler, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog())

	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/api/v1")
	v1.POST("/chat", h.Chat)
	v1.POST("/vendors", h.AddVendor)
	v1.POST("/products", h.AddProduct)
	v1.GET("/vendors", h.ListVendors)
	v1.GET("/vendors/last", h.LastVendor)
	v1.GET("/vendors/:id", h.Vendor)
	v1.GET("/products/last", h.LastProduct)
	v1.GET("/categories", h.Categories)
	return r
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		zlog.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

type chatResponse struct {
	SessionID string         `json:"session_id"`
	Intent    string         `json:"intent"`
	Reply     string         `json:"reply"`
	Answer    *domain.Answer `json:"answer,omitempty"`
	Form      session.Form   `json:"form,omitempty"`
}

func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	sess, _ := h.sessions.Get(req.SessionID)
	reply, err := h.chat.Handle(c.Request.Context(), sess, req.Message)
	if errors.Is(err, service.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	resp := chatResponse{
		SessionID: sess.ID,
		Intent:    string(reply.Verdict.Intent),
		Reply:     reply.Text,
		Answer:    reply.Answer,
		Form:      reply.Form,
	}
	status := http.StatusOK
	switch {
	case err == nil:
	case domain.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	default:
		zlog.Error("chat turn failed", zap.String("session", sess.ID), zap.Error(err))
		status = http.StatusInternalServerError
	}
	c.JSON(status, resp)
}

type vendorRequest struct {
	SessionID string `json:"session_id"`
	catalog.VendorInput
}

type productRequest struct {
	SessionID string `json:"session_id"`
	catalog.ProductInput
}

func (h *Handler) AddVendor(c *gin.Context) {
	var req vendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, catalog.Result{Message: "invalid vendor payload: " + err.Error()})
		return
	}
	sess, _ := h.sessions.Get(req.SessionID)
	writeResult(c, h.chat.SubmitVendor(c.Request.Context(), sess, req.VendorInput))
}

func (h *Handler) AddProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, catalog.Result{Message: "invalid product payload: " + err.Error()})
		return
	}
	sess, _ := h.sessions.Get(req.SessionID)
	writeResult(c, h.chat.SubmitProduct(c.Request.Context(), sess, req.ProductInput))
}

func writeResult(c *gin.Context, res catalog.Result) {
	if !res.Success {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) LastVendor(c *gin.Context) {
	v, ok, err := h.lookups.LastVendor(c.Request.Context())
	writeLookup(c, v, ok, err, "no vendors have been added yet")
}

func (h *Handler) LastProduct(c *gin.Context) {
	p, ok, err := h.lookups.LastProduct(c.Request.Context())
	writeLookup(c, p, ok, err, "no products have been added yet")
}

func (h *Handler) Vendor(c *gin.Context) {
	id := c.Param("id")
	v, ok, err := h.lookups.Vendor(c.Request.Context(), id)
	writeLookup(c, v, ok, err, "vendor "+id+" does not exist")
}

func (h *Handler) ListVendors(c *gin.Context) {
	vendors, err := h.lookups.ListVendors(c.Request.Context())
	writeLookup(c, vendors, true, err, "")
}

// Categories lists the product categories seen so far, for form hints.
func (h *Handler) Categories(c *gin.Context) {
	categories, err := h.lookups.Categories(c.Request.Context())
	writeLookup(c, categories, true, err, "")
}

func writeLookup(c *gin.Context, v any, ok bool, err error, missing string) {
	switch {
	case err != nil:
		zlog.Error("lookup failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
	case !ok:
		c.JSON(http.StatusNotFound, gin.H{"error": missing})
	default:
		c.JSON(http.StatusOK, v)
	}
}
