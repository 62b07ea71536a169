// Command server exposes background removal over HTTP.
package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/crbuch/rembg-go/inference"
	"github.com/crbuch/rembg-go/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	model := os.Getenv("REMBG_MODEL")
	if model == "" {
		model = pipeline.DefaultModel
	}
	session, err := inference.NewSession(model)
	if err != nil {
		logger.Error("creating session", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"model":   session.Model(),
			"session": session.State().String(),
		})
	})

	router.POST("/remove", func(c *gin.Context) {
		data, err := readImage(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		opts := pipeline.DefaultOptions()
		opts.Session = session
		opts.ForceBytes = true
		opts.AlphaMatting = c.Query("alpha_matting") == "true"
		opts.OnlyMask = c.Query("only_mask") == "true"
		opts.PostProcessMask = c.Query("post_process_mask") == "true"
		if v, err := strconv.Atoi(c.DefaultQuery("erode", "10")); err == nil {
			opts.ErodeSize = v
		}

		result, err := pipeline.RemoveOne(c.Request.Context(), pipeline.BytesInput(data), opts)
		if err != nil {
			logger.Error("removal failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", result.Bytes)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("listening", "port", port, "model", model)
	if err := router.Run(":" + port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// readImage accepts either a multipart "image" field or a raw body.
func readImage(c *gin.Context) ([]byte, error) {
	if file, err := c.FormFile("image"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 32<<20))
}
