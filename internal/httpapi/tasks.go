package httpapi

import (
	"net/http"

	"taskplane/pkg/errutil"
	"taskplane/pkg/middleware"
	"taskplane/services/task"

	"github.com/gin-gonic/gin"
)

type taskHandler struct {
	svc *task.Service
}

func (h *taskHandler) create(c *gin.Context) {
	var req task.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	t, err := h.svc.Create(c.Request.Context(), middleware.Principal(c), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

func (h *taskHandler) get(c *gin.Context) {
	t, err := h.svc.Get(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *taskHandler) list(c *gin.Context) {
	var filter task.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(errutil.BadRequest("invalid query parameters", errutil.WithErr(err)))
		return
	}

	result, err := h.svc.List(c.Request.Context(), middleware.Principal(c), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *taskHandler) update(c *gin.Context) {
	var req task.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("invalid request body", errutil.WithErr(err)))
		return
	}

	t, err := h.svc.Update(c.Request.Context(), middleware.Principal(c), c.Param("id"), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *taskHandler) remove(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.Principal(c), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// completionResponse carries the completed task plus the follow-up task a
// recurrence rule may have generated.
type completionResponse struct {
	Task *task.Task `json:"task"`
	Next *task.Task `json:"next_occurrence,omitempty"`
}

func (h *taskHandler) complete(c *gin.Context) {
	t, next, err := h.svc.Complete(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, &completionResponse{Task: t, Next: next})
}

func (h *taskHandler) uncomplete(c *gin.Context) {
	t, err := h.svc.Uncomplete(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *taskHandler) history(c *gin.Context) {
	events, err := h.svc.History(c.Request.Context(), middleware.Principal(c), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
