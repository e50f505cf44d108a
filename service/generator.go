package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fred1433/CounselAI/model"
	"github.com/fred1433/CounselAI/pkg/logger"
)

// Diagnostic types.
const (
	DiagnosticInfo    = "info"
	DiagnosticSuccess = "success"
	DiagnosticError   = "error"
)

// Diagnostic is a human-readable progress message.
type Diagnostic struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// Reporter receives best-effort progress messages. Implementations must not
// block; nothing depends on a report being delivered.
type Reporter interface {
	Report(ctx context.Context, d Diagnostic)
}

// NopReporter discards every report.
type NopReporter struct{}

func (NopReporter) Report(context.Context, Diagnostic) {}

// Extractor is the text-extraction dependency of the service.
type Extractor interface {
	Extract(file *model.UploadedTemplate) (string, error)
}

type Options struct {
	// DefaultModel is used when no override is given, and always for edits.
	DefaultModel string
	// AllowedModels restricts overrides when non-empty.
	AllowedModels []string
	// Timeout bounds each LLM call.
	Timeout time.Duration
}

var errEmptyResponse = errors.New("empty response from model")

// GenerationService turns form data, templates and chat instructions into
// contract text. It holds no per-request state.
type GenerationService struct {
	llm       LLMClient
	extractor Extractor
	reporter  Reporter
	opts      Options
}

func NewGenerationService(llm LLMClient, extractor Extractor, reporter Reporter, opts Options) *GenerationService {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &GenerationService{
		llm:       llm,
		extractor: extractor,
		reporter:  reporter,
		opts:      opts,
	}
}

// DecodeContractRequest parses the contractData form field and validates it.
// Malformed JSON and field constraint failures both yield *ValidationError.
func DecodeContractRequest(contractData string) (*model.ContractRequest, error) {
	if strings.TrimSpace(contractData) == "" {
		return nil, newValidationError("contractData", "required", "contractData is required")
	}

	// A type mismatch does not stop decoding, so the remaining fields are
	// still validated and reported alongside it.
	var req model.ContractRequest
	var typeErr error
	if err := json.Unmarshal([]byte(contractData), &req); err != nil {
		var ute *json.UnmarshalTypeError
		if !errors.As(err, &ute) || ute.Field == "" {
			return nil, newValidationError("contractData", "isJson", "Invalid JSON format for contractData")
		}
		typeErr = newValidationError(ute.Field, "type",
			fmt.Sprintf("%s must be a %s", ute.Field, jsonTypeName(ute.Type.Kind().String())))
	}

	if err := Validate(&req); err != nil || typeErr != nil {
		return nil, mergeValidation(typeErr, err)
	}
	return &req, nil
}

func jsonTypeName(kind string) string {
	switch kind {
	case "bool":
		return "boolean"
	case "struct":
		return "object"
	default:
		return kind
	}
}

func (s *GenerationService) resolveModel(override string) (string, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		return s.opts.DefaultModel, nil
	}
	if len(s.opts.AllowedModels) > 0 && !slices.Contains(s.opts.AllowedModels, override) {
		return "", newValidationError("model", "isIn",
			"model must be one of: "+strings.Join(s.opts.AllowedModels, ", "))
	}
	return override, nil
}

// GenerateContract drafts a contract from the raw contractData JSON and an
// optional template. Validation runs before any external call.
func (s *GenerationService) GenerateContract(ctx context.Context, contractData string, file *model.UploadedTemplate, modelOverride string) (string, error) {
	req, err := DecodeContractRequest(contractData)
	modelName, modelErr := s.resolveModel(modelOverride)
	if err != nil || modelErr != nil {
		return "", mergeValidation(err, modelErr)
	}

	var prompt string
	if file != nil {
		s.reporter.Report(ctx, Diagnostic{Message: "Template file detected, extracting text...", Type: DiagnosticInfo})
		logger.Info(ctx, "extracting template text", "filename", file.Filename, "media_type", file.MediaType, "size", len(file.Data))

		text, err := s.extractor.Extract(file)
		if err != nil {
			logger.Error(ctx, "template extraction failed", "filename", file.Filename, logger.Err(err))
			s.reporter.Report(ctx, Diagnostic{Message: "Failed to read the template file.", Type: DiagnosticError})
			return "", err
		}
		s.reporter.Report(ctx, Diagnostic{Message: "Text extraction successful.", Type: DiagnosticInfo})
		prompt = BuildFromTemplate(req, text)
	} else {
		s.reporter.Report(ctx, Diagnostic{Message: "Constructing prompt from form data...", Type: DiagnosticInfo})
		prompt = BuildFromData(req)
	}

	s.reporter.Report(ctx, Diagnostic{Message: "Sending prompt to the model (" + modelName + ")...", Type: DiagnosticInfo})
	text, err := s.complete(ctx, modelName, prompt)
	if err != nil {
		s.reporter.Report(ctx, Diagnostic{Message: "Contract generation failed.", Type: DiagnosticError})
		return "", err
	}

	s.reporter.Report(ctx, Diagnostic{Message: "Contract generation successful.", Type: DiagnosticSuccess})
	return text, nil
}

// EditContract applies the last user instruction of the request's history to
// the last assistant version. It always uses the default model. Every
// failure is an *EditError carrying the request id.
func (s *GenerationService) EditContract(ctx context.Context, req model.EditRequest) (*model.EditResult, error) {
	norm := req.Normalize()
	ctx = logger.With(ctx, logger.EditIDKey, norm.RequestID)

	if err := validateEdit(norm); err != nil {
		return nil, &EditError{RequestID: norm.RequestID, Err: err}
	}

	logger.Info(ctx, "editing contract", "history_len", len(norm.History))
	s.reporter.Report(ctx, Diagnostic{Message: "Applying edit " + norm.RequestID + "...", Type: DiagnosticInfo})

	text, err := s.complete(ctx, s.opts.DefaultModel, BuildEdit(norm.History))
	if err != nil {
		return nil, &EditError{RequestID: norm.RequestID, Err: err}
	}

	logger.Info(ctx, "edit applied", "length", len(text))
	return &model.EditResult{Contract: text, RequestID: norm.RequestID}, nil
}

func validateEdit(req model.EditRequest) error {
	var fields []FieldError
	add := func(property, constraint, message string) {
		fields = append(fields, FieldError{Property: property, Constraints: map[string]string{constraint: message}})
	}

	if strings.TrimSpace(req.RequestID) == "" {
		add("requestId", "required", "requestId is required")
	}
	if len(req.History) == 0 {
		add("history", "required", "history must contain at least one message")
	}
	for i, msg := range req.History {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			add(fmt.Sprintf("history[%d].role", i), "isIn", "role must be one of: user, assistant")
		}
	}
	if n := len(req.History); n > 0 {
		last := req.History[n-1]
		if last.Role != model.RoleUser || strings.TrimSpace(last.Content) == "" {
			add("history", "lastIsInstruction", "the last message must be a non-empty user instruction")
		}
		if _, ok := req.History.LastAssistant(); !ok {
			add("history", "hasContract", "history must contain the current contract as an assistant message")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// GenerateDescription drafts a "Scope of Duties" snippet with the default model.
func (s *GenerationService) GenerateDescription(ctx context.Context, req *model.DescriptionRequest) (string, error) {
	if err := Validate(req); err != nil {
		return "", err
	}
	return s.complete(ctx, s.opts.DefaultModel, BuildDescription(req))
}

// complete makes the single LLM call of a request and sanitizes the answer.
func (s *GenerationService) complete(ctx context.Context, modelName, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.llm.Complete(callCtx, modelName, prompt)
	if err != nil {
		logger.Error(ctx, "llm call failed", "model", modelName, "latency_ms", time.Since(start).Milliseconds(), logger.Err(err))
		return "", &UpstreamError{Model: modelName, Err: err}
	}

	text := Sanitize(raw)
	logger.Debug(ctx, "llm call completed", "model", modelName, "latency_ms", time.Since(start).Milliseconds(),
		"raw_length", len(raw), "length", len(text))
	if text == "" {
		return "", &UpstreamError{Model: modelName, Err: errEmptyResponse}
	}
	return text, nil
}

// mergeValidation combines validation errors from independent checks. A
// property failing in several checks is listed once with all its constraints.
func mergeValidation(errs ...error) error {
	merged := &ValidationError{}
	index := make(map[string]int)
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		for _, f := range ve.Fields {
			i, ok := index[f.Property]
			if !ok {
				index[f.Property] = len(merged.Fields)
				merged.Fields = append(merged.Fields, FieldError{Property: f.Property, Constraints: map[string]string{}})
				i = len(merged.Fields) - 1
			}
			for tag, msg := range f.Constraints {
				merged.Fields[i].Constraints[tag] = msg
			}
		}
	}
	return merged
}
