package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/fred1433/CounselAI/service"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (s *stubLLM) Complete(_ context.Context, _ string, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func (s *stubLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *stubLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

const testMaxUpload = 4 << 10

func newContractRouter(llm service.LLMClient) *gin.Engine {
	svc := service.NewGenerationService(llm, service.NewTextExtractor(), nil, service.Options{DefaultModel: "test-model"})
	h := NewContractHandler(svc, testMaxUpload)

	router := gin.New()
	router.POST("/api/v1/contracts/generate", h.Generate)
	router.POST("/api/v1/contracts/generate-description", h.GenerateDescription)
	return router
}

type templatePart struct {
	filename    string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, fields map[string]string, file *templatePart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field: %v", err)
		}
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="templateFile"; filename="%s"`, file.filename))
		if file.contentType != "" {
			h.Set("Content-Type", file.contentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("Failed to create part: %v", err)
		}
		part.Write(file.data)
	}
	w.Close()

	req := httptest.NewRequest("POST", "/api/v1/contracts/generate", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

const validContractData = `{"employerName":"Acme Inc.","employeeName":"Jane Doe","jobTitle":"Engineer","startDate":"2025-01-01","hasInitialTerm":false,"hasNoEndDate":true,"salary":"$100,000","benefits":{},"includeNda":false,"includeNonCompetition":false,"attyInNotice":false}`

func TestGenerateFromData(t *testing.T) {
	llm := &stubLLM{response: "```markdown\n# EMPLOYMENT AGREEMENT\n```"}
	router := newContractRouter(llm)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string]string{"contractData": validContractData}, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["contract"] != "# EMPLOYMENT AGREEMENT" {
		t.Errorf("Unexpected contract %q", response["contract"])
	}
}

func TestGenerateValidationFailure(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		property string
	}{
		{
			name:     "missing employer name",
			fields:   map[string]string{"contractData": strings.Replace(validContractData, `"employerName":"Acme Inc.",`, "", 1)},
			property: "employerName",
		},
		{
			name:     "malformed json",
			fields:   map[string]string{"contractData": "{oops"},
			property: "contractData",
		},
		{
			name:     "no contract data",
			fields:   map[string]string{},
			property: "contractData",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{response: "# A"}
			router := newContractRouter(llm)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartRequest(t, tt.fields, nil))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", w.Code)
			}

			var response struct {
				Message string               `json:"message"`
				Errors  []service.FieldError `json:"errors"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if response.Message != "Validation failed" {
				t.Errorf("Expected validation message, got %q", response.Message)
			}
			if len(response.Errors) == 0 || response.Errors[0].Property != tt.property {
				t.Errorf("Expected error on %s, got %+v", tt.property, response.Errors)
			}
			if llm.calls() != 0 {
				t.Errorf("Expected no LLM call, got %d", llm.calls())
			}
		})
	}
}

func TestGenerateWithTemplate(t *testing.T) {
	tests := []struct {
		name           string
		file           templatePart
		expectedStatus int
		expectedError  string
		wantLLMCall    bool
	}{
		{
			name:           "plain text",
			file:           templatePart{"template.txt", "text/plain", []byte("Employer: [EMPLOYER_NAME]")},
			expectedStatus: http.StatusOK,
			wantLLMCall:    true,
		},
		{
			name:           "markdown by extension",
			file:           templatePart{"template.md", "application/octet-stream", []byte("Employer: [EMPLOYER_NAME]")},
			expectedStatus: http.StatusOK,
			wantLLMCall:    true,
		},
		{
			name:           "image",
			file:           templatePart{"logo.png", "image/png", []byte{0x89, 'P', 'N', 'G'}},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Unsupported file type",
		},
		{
			name:           "declared type wins over extension",
			file:           templatePart{"template.txt", "image/png", []byte("Employer: [EMPLOYER_NAME]")},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Unsupported file type",
		},
		{
			name:           "corrupt pdf",
			file:           templatePart{"template.pdf", "application/pdf", []byte("definitely not a pdf")},
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "Failed to extract text from file.",
		},
		{
			name:           "too large",
			file:           templatePart{"template.txt", "text/plain", bytes.Repeat([]byte("a"), testMaxUpload+1)},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{response: "# EMPLOYMENT AGREEMENT"}
			router := newContractRouter(llm)

			w := httptest.NewRecorder()
			file := tt.file
			router.ServeHTTP(w, multipartRequest(t, map[string]string{"contractData": validContractData}, &file))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedError != "" && !strings.Contains(w.Body.String(), tt.expectedError) {
				t.Errorf("Expected error containing %q, got %s", tt.expectedError, w.Body.String())
			}
			if got := llm.calls() > 0; got != tt.wantLLMCall {
				t.Errorf("Expected LLM called=%v, got %v", tt.wantLLMCall, got)
			}
			if tt.wantLLMCall && !strings.Contains(llm.lastPrompt(), "Employer: [EMPLOYER_NAME]") {
				t.Error("Expected template text in prompt")
			}
		})
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	llm := &stubLLM{err: errors.New("quota exceeded")}
	router := newContractRouter(llm)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string]string{"contractData": validContractData}, nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "quota exceeded") {
		t.Errorf("Expected upstream message in body, got %s", w.Body.String())
	}
}

func TestGenerateDescription(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"valid", `{"jobTitle":"Paralegal","companyName":"Acme Inc.","companyBusiness":"law firm"}`, http.StatusOK},
		{"missing fields", `{"jobTitle":"Paralegal"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stubLLM{response: "Scope of Duties"}
			router := newContractRouter(llm)

			req := httptest.NewRequest("POST", "/api/v1/contracts/generate-description", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedStatus == http.StatusOK && w.Body.String() != `{"description":"Scope of Duties"}` {
				t.Errorf("Unexpected body %s", w.Body.String())
			}
			if tt.expectedStatus == http.StatusBadRequest && !strings.Contains(w.Body.String(), "Validation failed") {
				t.Errorf("Expected validation body, got %s", w.Body.String())
			}
		})
	}
}

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		filename string
		declared string
		want     string
	}{
		{"a.pdf", "application/pdf", "application/pdf"},
		{"a.pdf", "", service.MediaTypePDF},
		{"a.DOCX", "application/octet-stream", service.MediaTypeDOCX},
		{"a.txt", "text/plain; charset=utf-8", "text/plain; charset=utf-8"},
		{"a.bin", "", "application/octet-stream"},
		{"a.png", "image/png", "image/png"},
	}

	for _, tt := range tests {
		header := &multipart.FileHeader{Filename: tt.filename, Header: textproto.MIMEHeader{}}
		if tt.declared != "" {
			header.Header.Set("Content-Type", tt.declared)
		}
		if got := resolveMediaType(header); got != tt.want {
			t.Errorf("resolveMediaType(%q, %q) = %q, want %q", tt.filename, tt.declared, got, tt.want)
		}
	}
}
