package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PabloG6/medscan-intellibus/internal/logger"
	"github.com/PabloG6/medscan-intellibus/internal/services"
)

type MeHandler struct {
	log       *logger.Logger
	meService services.MeService
}

func NewMeHandler(log *logger.Logger, meService services.MeService) *MeHandler {
	return &MeHandler{log: log.With("handler", "MeHandler"), meService: meService}
}

func (mh *MeHandler) GetMe(c *gin.Context) {
	me, err := mh.meService.GetMe(c.Request.Context())
	if err != nil {
		respondError(c, mh.log, "Failed to load user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"me": me})
}
