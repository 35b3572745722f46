package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thermalink/thermalink/internal/core"
	"github.com/thermalink/thermalink/internal/db"
	"github.com/thermalink/thermalink/internal/escpos"
)

type PrintTextRequest struct {
	Text      string `json:"text" binding:"required"`
	FontSize  string `json:"font_size"`
	Alignment string `json:"alignment"`
	Bold      bool   `json:"bold"`
}

type PrintQRCodeRequest struct {
	Data string `json:"data" binding:"required"`
	Size int    `json:"size"`
}

type PrintBarcodeRequest struct {
	Data string `json:"data" binding:"required"`
	Type string `json:"barcode_type"`
}

type FeedRequest struct {
	Lines int `json:"lines" binding:"required"`
}

type JobAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type PrintHandler struct {
	queue *core.Queue
}

func NewPrintHandler(queue *core.Queue) *PrintHandler {
	return &PrintHandler{queue: queue}
}

func (h *PrintHandler) PrintText(c *gin.Context) {
	var req PrintTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload := core.TextPayload{
		Text:      req.Text,
		FontSize:  req.FontSize,
		Alignment: req.Alignment,
		Bold:      req.Bold,
	}
	h.submit(c, "text", payload)
}

func (h *PrintHandler) PrintQRCode(c *gin.Context) {
	var req PrintQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Size == 0 {
		req.Size = 6
	}
	h.submit(c, "qr_code", core.QRCodePayload{Data: req.Data, Size: req.Size})
}

func (h *PrintHandler) PrintBarcode(c *gin.Context) {
	var req PrintBarcodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, "barcode", core.BarcodePayload{Data: req.Data, Type: req.Type})
}

func (h *PrintHandler) Feed(c *gin.Context) {
	var req FeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.submit(c, "feed", core.FeedPayload{Lines: req.Lines})
}

// submit enqueues the job; payload faults are the caller's problem,
// everything else is ours.
func (h *PrintHandler) submit(c *gin.Context, kind string, payload any) {
	job, err := h.queue.Enqueue(c.Request.Context(), kind, payload, c.ClientIP())
	if err != nil {
		if isPayloadError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}
	c.JSON(http.StatusAccepted, JobAcceptedResponse{JobID: job.PublicID, Status: job.Status})
}

func isPayloadError(err error) bool {
	return errors.Is(err, escpos.ErrInvalidParameter) ||
		errors.Is(err, escpos.ErrInvalidData) ||
		errors.Is(err, escpos.ErrPayloadTooLarge)
}

func toJobResponse(j *db.PrintJob) gin.H {
	resp := gin.H{
		"job_id":      j.PublicID,
		"kind":        j.Kind,
		"status":      j.Status,
		"retry_count": j.RetryCount,
		"created_at":  j.CreatedAt,
	}
	if j.ErrorMessage != "" {
		resp["error_message"] = j.ErrorMessage
	}
	if j.StartedAt != nil {
		resp["started_at"] = j.StartedAt
	}
	if j.CompletedAt != nil {
		resp["completed_at"] = j.CompletedAt
	}
	return resp
}
