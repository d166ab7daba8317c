package server

import (
	"encoding/csv"
	"net/http"

	"github.com/ctolnik/activity-tracker/zapctx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type categoryApps struct {
	Category string   `json:"category"`
	Apps     []string `json:"apps"`
}

func (s *Server) listCategories() []categoryApps {
	out := make([]categoryApps, 0)
	for _, category := range s.categorizer.Categories() {
		apps := s.categorizer.AppsIn(category)
		if apps == nil {
			apps = []string{}
		}
		out = append(out, categoryApps{Category: category, Apps: apps})
	}
	return out
}

// getCategoriesHandler returns every category with the process names mapped to it
func (s *Server) getCategoriesHandler(c *gin.Context) {
	if s.categorizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Categories are not available"})
		return
	}
	categories := s.listCategories()
	c.JSON(http.StatusOK, gin.H{
		"data":  categories,
		"total": len(categories),
	})
}

// setCategoryHandler overrides the category of one process name until restart.
// Sessions already stored keep the category they were closed with.
func (s *Server) setCategoryHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if s.categorizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Categories are not available"})
		return
	}
	app := c.Param("app")

	var req struct {
		Category string `json:"category" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		zapctx.Warn(ctx, "Invalid category request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !s.categorizer.Set(app, req.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	zapctx.Info(ctx, "Application category updated",
		zap.String("process_name", app),
		zap.String("category", req.Category))
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// exportCategoriesHandler exports the process to category table as JSON or CSV
func (s *Server) exportCategoriesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if s.categorizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Categories are not available"})
		return
	}

	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format. Use 'json' or 'csv'"})
		return
	}

	categories := s.listCategories()
	zapctx.Debug(ctx, "Exporting categories",
		zap.String("format", format),
		zap.Int("count", len(categories)))

	if format == "json" {
		c.Header("Content-Disposition", "attachment; filename=categories.json")
		c.JSON(http.StatusOK, categories)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=categories.csv")
	c.Status(http.StatusOK)

	writer := csv.NewWriter(c.Writer)
	_ = writer.Write([]string{"process_name", "category"})
	for _, cat := range categories {
		for _, app := range cat.Apps {
			_ = writer.Write([]string{app, cat.Category})
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		zapctx.Error(ctx, "Failed to write CSV export", zap.Error(err))
	}
}
