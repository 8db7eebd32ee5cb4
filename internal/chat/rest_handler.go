package chat

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"carechat/infrastructure"
	"carechat/internal/api"
)

// JSONHandler serves the conversation REST routes. Callers are identified by
// api.AuthMiddleware.
type JSONHandler struct {
	resolver *Resolver
	store    *MessageStore
	reads    *ReadState
	router   *Router
}

func NewJSONHandler(resolver *Resolver, store *MessageStore, reads *ReadState, router *Router) *JSONHandler {
	return &JSONHandler{
		resolver: resolver,
		store:    store,
		reads:    reads,
		router:   router,
	}
}

func (h *JSONHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/conversations", h.OpenConversation)
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id/messages", h.History)
	r.POST("/conversations/:id/read", h.MarkRead)
	r.GET("/unread", h.UnreadCount)
	r.DELETE("/messages/:id", h.DeleteMessage)
}

type openConversationRequest struct {
	PeerID int64 `json:"peer_id" binding:"required,gt=0"`
}

type historyQuery struct {
	Limit  int    `form:"limit" binding:"gte=0"`
	Before string `form:"before"`
}

type listQuery struct {
	Limit int `form:"limit" binding:"gte=0"`
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", infrastructure.ErrInvalidInput, c.Param("id"))
	}
	return id, nil
}

func (h *JSONHandler) OpenConversation(c *gin.Context) {
	var req openConversationRequest
	if err := api.BindJSON(c, &req); err != nil {
		api.Fail(c, err)
		return
	}
	callerID := api.CallerID(c)
	id, err := h.resolver.Resolve(c.Request.Context(), callerID, req.PeerID)
	if err != nil {
		api.Fail(c, err)
		return
	}
	conversation, err := h.resolver.Conversation(c.Request.Context(), id)
	if err != nil {
		api.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *JSONHandler) ListConversations(c *gin.Context) {
	var q listQuery
	if err := api.BindQuery(c, &q); err != nil {
		api.Fail(c, err)
		return
	}
	list, err := h.resolver.ListForUser(c.Request.Context(), api.CallerID(c), q.Limit)
	if err != nil {
		api.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": list})
}

func (h *JSONHandler) History(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		api.Fail(c, err)
		return
	}
	var q historyQuery
	if err := api.BindQuery(c, &q); err != nil {
		api.Fail(c, err)
		return
	}
	before, err := ParseCursor(q.Before)
	if err != nil {
		api.Fail(c, err)
		return
	}
	page, err := h.store.Page(c.Request.Context(), id, api.CallerID(c), q.Limit, before)
	if err != nil {
		api.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *JSONHandler) MarkRead(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		api.Fail(c, err)
		return
	}
	n, err := h.router.MarkRead(c.Request.Context(), id, api.CallerID(c))
	if err != nil {
		api.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "marked": n})
}

func (h *JSONHandler) UnreadCount(c *gin.Context) {
	callerID := api.CallerID(c)
	n, err := h.reads.UnreadCount(c.Request.Context(), callerID)
	if err != nil {
		api.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, UnreadCountEvent{UserID: callerID, Count: n})
}

func (h *JSONHandler) DeleteMessage(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		api.Fail(c, err)
		return
	}
	msg, err := h.router.DeleteMessage(c.Request.Context(), id, api.CallerID(c))
	if err != nil {
		api.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}
