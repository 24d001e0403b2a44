package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"docchat/internal/domain"
)

const codeFileTooLarge = "FILE_TOO_LARGE"

// fileTooLargeError is reported as 413 whichever check catches it.
type fileTooLargeError struct {
	name  string
	limit int64
}

func (e *fileTooLargeError) Error() string {
	return fmt.Sprintf("file %s exceeds %d byte limit", e.name, e.limit)
}

// Handler serves the /api routes over one shared conversation.
type Handler struct {
	conv      Conversation
	extractor Extractor
	logger    logr.Logger
	maxUpload int64
}

// RegisterRoutes registers the /api routes on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.POST("/upload", h.Upload)
	api.POST("/ask", h.Ask)
	api.POST("/search", h.Search)
	api.POST("/reset", h.Reset)
	api.GET("/health", h.Health)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadResponse reports a committed upload.
type UploadResponse struct {
	Message   string   `json:"message"`
	Files     []string `json:"files"`
	Passages  int      `json:"passages"`
	IndexSize int      `json:"index_size"`
	Summary   string   `json:"summary,omitempty"`
}

// AskRequest is the body of /api/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// Message is one chat_history entry; Role is "user" or "bot".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AskResponse carries the answer and the whole history.
type AskResponse struct {
	Answer      string    `json:"answer"`
	ChatHistory []Message `json:"chat_history"`
}

// SearchRequest is the body of /api/search. A zero TopK uses the default.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchHit is one ranked passage.
type SearchHit struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// SearchResponse lists passages by decreasing score.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// Upload extracts the multipart "files" and ingests them as one batch.
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		sendError(c, domain.Errorf(domain.KindInvalid, "upload", "no files provided"))
		return
	}

	headers := form.File["files"]
	docs := make([]domain.Document, 0, len(headers))
	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(fh.Filename)
		if !h.extractor.Supported(name) {
			sendError(c, domain.Errorf(domain.KindInvalid, "upload", "invalid file type: %s", name))
			return
		}
		if fh.Size > h.maxUpload {
			sendError(c, &fileTooLargeError{name: name, limit: h.maxUpload})
			return
		}
		text, err := h.extract(fh, name)
		if err != nil {
			sendError(c, err)
			return
		}
		docs = append(docs, domain.Document{Name: name, Text: text})
		names = append(names, name)
	}

	report, err := h.conv.Ingest(c.Request.Context(), docs)
	if err != nil {
		h.logger.Error(err, "ingest failed", "files", names)
		sendError(c, err)
		return
	}
	h.logger.Info("documents processed", "files", names, "passages", report.Passages)
	c.JSON(http.StatusOK, UploadResponse{
		Message:   "PDFs processed successfully",
		Files:     names,
		Passages:  report.Passages,
		IndexSize: report.IndexSize,
		Summary:   report.Summary,
	})
}

func (h *Handler) extract(fh *multipart.FileHeader, name string) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", domain.E(domain.KindExtraction, "upload", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return "", domain.E(domain.KindExtraction, "upload", err)
	}
	if int64(len(data)) > h.maxUpload {
		return "", &fileTooLargeError{name: name, limit: h.maxUpload}
	}
	return h.extractor.Extract(name, data)
}

// Ask answers a question and returns the updated history.
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		sendError(c, domain.Errorf(domain.KindInvalid, "ask", "no question provided"))
		return
	}
	reply, err := h.conv.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.logger.Error(err, "ask failed")
		sendError(c, err)
		return
	}
	history := make([]Message, 0, 2*len(reply.History))
	for _, t := range reply.History {
		history = append(history,
			Message{Role: "user", Content: t.Question},
			Message{Role: "bot", Content: t.Answer},
		)
	}
	c.JSON(http.StatusOK, AskResponse{Answer: reply.Answer, ChatHistory: history})
}

// Search returns ranked passages without calling the completer.
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, domain.E(domain.KindInvalid, "search", err))
		return
	}
	results, err := h.conv.Query(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		sendError(c, err)
		return
	}
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{ID: r.Passage.ID, Text: r.Passage.Text, Score: r.Score}
	}
	c.JSON(http.StatusOK, SearchResponse{Results: hits})
}

// Reset clears the index and the history.
func (h *Handler) Reset(c *gin.Context) {
	if err := h.conv.Reset(c.Request.Context()); err != nil {
		h.logger.Error(err, "reset failed")
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Conversation reset"})
}

// Health always reports healthy.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func sendError(c *gin.Context, err error) {
	var tooLarge *fileTooLargeError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Code: codeFileTooLarge, Message: tooLarge.Error()})
		return
	}
	kind := domain.KindOf(err)
	c.JSON(statusFor(kind, err), ErrorResponse{
		Code:    string(kind),
		Message: err.Error(),
	})
}

func statusFor(kind domain.Kind, err error) int {
	switch kind {
	case domain.KindInvalid, domain.KindNotReady:
		return http.StatusBadRequest
	case domain.KindExtraction:
		return http.StatusUnprocessableEntity
	case domain.KindIngestion:
		if errors.Is(err, domain.ErrExtraction) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	case domain.KindCompletion:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
