package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/services"
)

// multipartOverhead leaves room for form boundaries around the file itself.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	log           *logger.Logger
	uploadService services.UploadService
	maxBytes      int64
}

func NewUploadHandler(log *logger.Logger, uploadService services.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		log:           log.With("handler", "UploadHandler"),
		uploadService: uploadService,
		maxBytes:      maxBytes,
	}
}

func (uh *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, uh.maxBytes+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a multipart file field named \"file\" is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer f.Close()

	att, err := uh.uploadService.UploadAttachment(c.Request.Context(), fh.Filename, f)
	if err != nil {
		respondError(c, uh.log, "Failed to upload attachment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        att.ID,
		"url":       att.DataURL,
		"mediaType": att.MediaType,
		"filename":  att.Filename,
	})
}
