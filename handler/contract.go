package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fred1433/CounselAI/model"
	"github.com/fred1433/CounselAI/pkg/logger"
	"github.com/fred1433/CounselAI/service"
	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for the form fields around the template.
const multipartOverhead = 1 << 20

// ContractGenerator is the part of the generation service the HTTP layer uses.
type ContractGenerator interface {
	GenerateContract(ctx context.Context, contractData string, file *model.UploadedTemplate, modelOverride string) (string, error)
	GenerateDescription(ctx context.Context, req *model.DescriptionRequest) (string, error)
}

type ContractHandler struct {
	generator      ContractGenerator
	maxUploadBytes int64
}

func NewContractHandler(generator ContractGenerator, maxUploadBytes int64) *ContractHandler {
	return &ContractHandler{
		generator:      generator,
		maxUploadBytes: maxUploadBytes,
	}
}

// extensionMediaTypes is consulted only when the client did not declare a
// usable Content-Type for the template part.
var extensionMediaTypes = map[string]string{
	".pdf":  service.MediaTypePDF,
	".docx": service.MediaTypeDOCX,
	".txt":  service.MediaTypeText,
	".md":   service.MediaTypeMarkdown,
}

type tooLargeError struct {
	limit int64
}

func (e *tooLargeError) Error() string {
	return fmt.Sprintf("template file exceeds the %d MiB limit", e.limit>>20)
}

// Generate handles POST /contracts/generate.
func (h *ContractHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	file, err := h.readTemplate(c)
	if err != nil {
		var tooLarge *tooLargeError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Template file is too large. The limit is %d MiB.", tooLarge.limit>>20)})
			return
		}
		logger.Warn(ctx, "invalid multipart request", logger.Err(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart request"})
		return
	}

	contract, err := h.generator.GenerateContract(ctx, c.PostForm("contractData"), file, c.PostForm("model"))
	if err != nil {
		writeError(c, err, "Failed to generate contract")
		return
	}

	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// readTemplate returns the optional templateFile part. The bytes are held in
// memory for this request only.
func (h *ContractHandler) readTemplate(c *gin.Context) (*model.UploadedTemplate, error) {
	_, header, err := c.Request.FormFile("templateFile")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return nil, nil
		case errors.As(err, &maxErr):
			return nil, &tooLargeError{limit: h.maxUploadBytes}
		default:
			return nil, err
		}
	}
	if header.Size > h.maxUploadBytes {
		return nil, &tooLargeError{limit: h.maxUploadBytes}
	}

	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return &model.UploadedTemplate{
		Filename:  header.Filename,
		MediaType: resolveMediaType(header),
		Data:      data,
	}, nil
}

// resolveMediaType trusts the declared part Content-Type and falls back to
// the file extension only when nothing specific was declared.
func resolveMediaType(header *multipart.FileHeader) string {
	declared := strings.TrimSpace(header.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if mt, ok := extensionMediaTypes[strings.ToLower(filepath.Ext(header.Filename))]; ok {
		return mt
	}
	if declared == "" {
		return "application/octet-stream"
	}
	return declared
}

// GenerateDescription handles POST /contracts/generate-description.
func (h *ContractHandler) GenerateDescription(c *gin.Context) {
	var req model.DescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &service.ValidationError{Fields: []service.FieldError{{
			Property:    "body",
			Constraints: map[string]string{"isJson": "Invalid JSON body"},
		}}}, "")
		return
	}

	description, err := h.generator.GenerateDescription(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err, "Failed to generate job description")
		return
	}

	c.JSON(http.StatusOK, gin.H{"description": description})
}

// writeError maps service errors onto HTTP responses. action prefixes the
// message of upstream failures.
func writeError(c *gin.Context, err error, action string) {
	ctx := c.Request.Context()

	var (
		verr        *service.ValidationError
		unsupported *service.UnsupportedMediaError
		extraction  *service.ExtractionError
		upstream    *service.UpstreamError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Validation failed", "errors": verr.Fields})
	case errors.As(err, &unsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported file type. Please upload a PDF, DOCX, TXT or Markdown file."})
	case errors.As(err, &extraction):
		logger.Error(ctx, "template extraction failed", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to extract text from file."})
	case errors.As(err, &upstream):
		logger.Error(ctx, "llm request failed", "model", upstream.Model, logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": action + ": " + upstream.Error()})
	default:
		logger.Error(ctx, "unexpected error", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
