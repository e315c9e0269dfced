package server

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"

	"github.com/gin-gonic/gin"

	"handsign/internal/models"
	"handsign/internal/service"
)

const (
	missingFileMessage = "No file uploaded"
	tooLargeMessage    = "Uploaded file too large"
)

func (s *Server) handleSubmit(c *gin.Context) {
	const op = "server.handleSubmit"

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxUploadBytes)

	var sub service.Submission
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": tooLargeMessage})
			return
		}
		// Any other parse failure means there is no usable file part.
		s.logger.Debug("no file part", "op", op, "error", err)
	} else {
		src, err := file.Open()
		if err != nil {
			s.fail(c, err)
			return
		}
		defer src.Close()
		sub.File = src
		sub.Filename = file.Filename
		sub.Size = file.Size
	}
	sub.PredictedText = c.PostForm("predicted_text")

	ev, err := s.ingest.Submit(c.Request.Context(), sub)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "payload": ev})
}

func (s *Server) handleHistory(c *gin.Context) {
	rows, err := s.history.ListAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if rows == nil {
		rows = []models.TranslationRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "rows": rows})
}

// handleBlob streams stored images for backends without a local directory.
func (s *Server) handleBlob(c *gin.Context) {
	locator := path.Join(s.cfg.Storage.PublicPrefix, c.Param("name"))
	rc, err := s.blobs.Open(c.Request.Context(), locator)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.Status(http.StatusNotFound)
			return
		}
		s.logger.Error("opening blob", "locator", locator, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(locator))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

func (s *Server) handleReady(c *gin.Context) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := gin.H{}
	for _, name := range names {
		if err := s.checks[name](c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// fail writes the error response for a failed request. Only a missing
// payload is the caller's fault.
func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, models.ErrMissingPayload) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": missingFileMessage})
		return
	}
	if errors.Is(err, context.Canceled) {
		s.logger.Warn("request canceled", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
}
