package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskplane/pkg/errutil"
	"taskplane/pkg/middleware"
	"taskplane/services/task"

	"github.com/gin-gonic/gin"
)

var exportHeader = []string{
	"id", "title", "description", "priority", "due_date", "recurrence",
	"is_completed", "completed_at", "tags", "created_at", "updated_at",
}

// export streams the principal's filtered tasks as CSV (default) or JSON.
// The same filter contract as the list endpoint applies, minus pagination.
func (h *taskHandler) export(c *gin.Context) {
	var filter task.ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(errutil.BadRequest("invalid query parameters", errutil.WithErr(err)))
		return
	}

	tasks, err := h.svc.Export(c.Request.Context(), middleware.Principal(c), filter)
	if err != nil {
		c.Error(err)
		return
	}

	switch c.DefaultQuery("format", "csv") {
	case "json":
		c.Header("Content-Disposition", `attachment; filename="tasks.json"`)
		c.JSON(http.StatusOK, gin.H{"tasks": tasks})
	case "csv":
		writeCSV(c, tasks)
	default:
		c.Error(errutil.ValidationFailed("invalid export format",
			errutil.WithDetails(errutil.Detail{Field: "format", Message: "must be csv or json"})))
	}
}

func writeCSV(c *gin.Context, tasks []*task.Task) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="tasks-%s.csv"`, time.Now().UTC().Format("2006-01-02")))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)

	for _, t := range tasks {
		names := make([]string, 0, len(t.Tags))
		for _, tg := range t.Tags {
			names = append(names, tg.Name)
		}

		_ = w.Write([]string{
			t.ID,
			t.Title,
			t.Description,
			string(t.Priority),
			formatTimePtr(t.DueDate),
			string(t.Recurrence),
			strconv.FormatBool(t.IsCompleted),
			formatTimePtr(t.CompletedAt),
			strings.Join(names, ";"),
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	w.Flush()
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
