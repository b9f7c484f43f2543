package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"verdant-sync/internal/adapter"
	"verdant-sync/internal/domain"
	"verdant-sync/internal/media"
	"verdant-sync/internal/syncer"
	"verdant-sync/internal/transport/httpdto"
	verdant_errors "verdant-sync/pkg/errors"
	"verdant-sync/pkg/logger"
)

// Server exposes the synchronized views and commands to local UI
// processes over HTTP. It holds no state of its own; everything is read
// from or issued through the presentation adapter.
type Server struct {
	adapter    *adapter.Adapter
	controller *syncer.Controller
	uploader   *media.Uploader
	log        *logger.Logger
}

func New(ad *adapter.Adapter, controller *syncer.Controller, uploader *media.Uploader, log *logger.Logger) *Server {
	return &Server{adapter: ad, controller: controller, uploader: uploader, log: log}
}

func (s *Server) Router(mode string) *gin.Engine {
	if mode != logger.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), LoggingMiddleware(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connection_state": s.controller.State()})
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/conversations", s.listConversations)
		v1.GET("/conversations/:id/messages", s.listMessages)
		v1.POST("/conversations/:id/messages", s.sendMessage)
		v1.POST("/conversations/:id/read", s.markRead)
		v1.POST("/conversations/:id/open", s.openConversation)
		v1.POST("/conversations/:id/older", s.loadOlder)
		v1.POST("/conversations/direct", s.startDirect)
		v1.POST("/conversations/close", s.closeConversation)
		v1.GET("/badge", s.badge)
		v1.GET("/presence/:userID", s.presence)
		v1.POST("/sends/:localSeq/retry", s.retrySend)
		v1.DELETE("/sends/:localSeq", s.discardSend)
		v1.POST("/media", s.uploadMedia)
	}
	return r
}

func domainDraft(req httpdto.SendMessageRequest) domain.Draft {
	return domain.Draft{Content: req.Content, MediaURLs: req.MediaURLs}
}

func (s *Server) listConversations(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(s.adapter.Conversations()))
}

func (s *Server) listMessages(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(s.adapter.Thread(c.Param("id"))))
}

func (s *Server) sendMessage(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	localSeq, err := s.adapter.Send(c.Request.Context(), c.Param("id"), domainDraft(req))
	if err != nil && !verdant_errors.IsNetwork(err) {
		writeError(c, err)
		return
	}

	resp := httpdto.SendMessageResponse{LocalSeq: localSeq, Delivered: err == nil}
	if err != nil {
		// The optimistic entry stays in the thread flagged failed; the UI
		// renders the retry affordance from it.
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}

func (s *Server) markRead(c *gin.Context) {
	if err := s.adapter.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(true))
}

func (s *Server) openConversation(c *gin.Context) {
	if err := s.adapter.OpenConversation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(s.adapter.Thread(c.Param("id"))))
}

func (s *Server) loadOlder(c *gin.Context) {
	if err := s.adapter.LoadOlder(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(s.adapter.Thread(c.Param("id"))))
}

func (s *Server) closeConversation(c *gin.Context) {
	s.adapter.CloseConversation()
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(true))
}

func (s *Server) startDirect(c *gin.Context) {
	var req httpdto.StartDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PeerID == "" {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid peer_id", "INVALID_REQUEST"))
		return
	}
	conversationID, err := s.adapter.StartDirectChat(c.Request.Context(), req.PeerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.StartDirectResponse{ConversationID: conversationID}))
}

func (s *Server) badge(c *gin.Context) {
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.BadgeResponse{
		Unread:          s.adapter.UnreadBadge(),
		ConnectionState: string(s.controller.State()),
	}))
}

func (s *Server) presence(c *gin.Context) {
	p, ok := s.adapter.Presence(c.Param("userID"))
	if !ok {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("no presence known", "NOT_FOUND"))
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(p))
}

func (s *Server) retrySend(c *gin.Context) {
	localSeq, err := strconv.ParseInt(c.Param("localSeq"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid local_seq", "INVALID_REQUEST"))
		return
	}
	if err := s.adapter.RetrySend(c.Request.Context(), localSeq); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(true))
}

func (s *Server) discardSend(c *gin.Context) {
	localSeq, err := strconv.ParseInt(c.Param("localSeq"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid local_seq", "INVALID_REQUEST"))
		return
	}
	if err := s.adapter.DiscardSend(localSeq); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(true))
}

func (s *Server) uploadMedia(c *gin.Context) {
	if s.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("media uploads not configured", "UPLOADS_DISABLED"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("missing file", "INVALID_REQUEST"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable file", "INVALID_REQUEST"))
		return
	}
	defer file.Close()

	url, err := s.uploader.Upload(c.Request.Context(), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), fileHeader.Size, file)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UploadResponse{URL: url}))
}
