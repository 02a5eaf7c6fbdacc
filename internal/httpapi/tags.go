package httpapi

import (
	"net/http"

	"taskplane/pkg/errutil"
	"taskplane/pkg/middleware"
	"taskplane/services/tag"

	"github.com/gin-gonic/gin"
)

type tagHandler struct {
	svc *tag.Service
}

type tagRequest struct {
	Name string `json:"name"`
}

func (h *tagHandler) create(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	t, err := h.svc.Create(c.Request.Context(), middleware.Principal(c), req.Name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

func (h *tagHandler) get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *tagHandler) list(c *gin.Context) {
	tags, err := h.svc.List(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *tagHandler) rename(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	t, err := h.svc.Rename(c.Request.Context(), middleware.Principal(c), c.Param("id"), req.Name)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *tagHandler) remove(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.Principal(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *tagHandler) history(c *gin.Context) {
	events, err := h.svc.History(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
