package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/export"
	"github.com/ovleluv/AIContract-STT/internal/pipeline"
	"github.com/ovleluv/AIContract-STT/internal/structured"
	"github.com/ovleluv/AIContract-STT/pkg/provider/stt"
)

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return contract.InvalidInput("malformed JSON body: %v", err)
	}
	return nil
}

// fieldsFrom converts a client-supplied JSON object to a field map. Nested
// values are flattened the same way model replies are. Anything but an
// object is invalid input.
func fieldsFrom(raw json.RawMessage) (contract.Fields, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return contract.Fields{}, nil
	}
	if trimmed[0] != '{' {
		return nil, contract.InvalidInput("extracted field data must be a JSON object")
	}
	fields, err := structured.FieldMap(string(trimmed))
	if err != nil {
		return nil, contract.InvalidInput("extracted field data is not a valid field map")
	}
	return fields, nil
}

func (s *Server) detectLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	lang, err := s.p.DetectLanguage(r.Context(), sessionID(r.Context()), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": lang})
}

type draftResponse struct {
	ContractType           contract.Type   `json:"contract_type"`
	ContractTypeSource     string          `json:"contract_type_source"`
	RequiredFields         []string        `json:"required_fields"`
	RequiredFieldsDegraded bool            `json:"required_fields_degraded,omitempty"`
	Contract               string          `json:"contract"`
	ContractSample         string          `json:"contract_sample"`
	Language               string          `json:"language"`
	ExtractedFields        contract.Fields `json:"extracted_fields"`
	ExtractionFailed       bool            `json:"extraction_failed,omitempty"`
}

func (s *Server) classifyAndDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message  string `json:"message"`
		Source   string `json:"source"`
		Language string `json:"language"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.p.ClassifyAndDraft(r.Context(), pipeline.DraftRequest{
		SessionID:    sessionID(r.Context()),
		Message:      req.Message,
		Source:       req.Source,
		LanguageHint: req.Language,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{
		ContractType:           res.ContractType,
		ContractTypeSource:     string(res.TypeSource),
		RequiredFields:         nonNil(res.RequiredFields.Fields),
		RequiredFieldsDegraded: res.RequiredFields.Degraded,
		Contract:               res.Contract,
		ContractSample:         res.Contract,
		Language:               res.Language,
		ExtractedFields:        orEmpty(res.Extracted),
		ExtractionFailed:       res.ExtractionFailed,
	})
}

func (s *Server) extractFields(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserInput string `json:"user_input"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := s.p.ExtractFields(r.Context(), sessionID(r.Context()), req.UserInput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]contract.Fields{"extracted_fields": orEmpty(fields)})
}

func (s *Server) mergeFields(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentContract string          `json:"current_contract"`
		ExtractedFields json.RawMessage `json:"extracted_fields"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := fieldsFrom(req.ExtractedFields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	merged, err := s.p.MergeFields(r.Context(), sessionID(r.Context()), req.CurrentContract, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contract": merged})
}

func (s *Server) fetchDraft(w http.ResponseWriter, r *http.Request) {
	doc, err := s.p.FetchDraft(r.Context(), sessionID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDocument(w, doc)
}

func (s *Server) exportText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContractType string `json:"contract_type"`
		ContractText string `json:"contract_text"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.p.ExportText(r.Context(), req.ContractType, req.ContractText)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDocument(w, doc)
}

func writeDocument(w http.ResponseWriter, doc *export.Document) {
	h := w.Header()
	h.Set("Content-Type", doc.ContentType)
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	h.Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

func (s *Server) suggestContracts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	types, lang, err := s.p.SuggestContracts(r.Context(), sessionID(r.Context()), req.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggested_contracts": nonNil(types),
		"language":            lang,
	})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Selection       string          `json:"selection"`
		ExtractedFields json.RawMessage `json:"extracted_fields"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := fieldsFrom(req.ExtractedFields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.p.Generate(r.Context(), pipeline.GenerateRequest{
		SessionID: sessionID(r.Context()),
		Selection: req.Selection,
		Fields:    fields,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract_type":            res.ContractType,
		"contract":                 res.Contract,
		"required_fields":          nonNil(res.RequiredFields.Fields),
		"required_fields_degraded": res.RequiredFields.Degraded,
		"language":                 res.Language,
	})
}

// multipartOverhead is allowed on top of the recording for form framing.
const multipartOverhead = 64 << 10

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, contract.InvalidInput("the recording is too large, the limit is %d bytes", s.opts.MaxUploadBytes))
			return
		}
		writeError(w, r, contract.InvalidInput("expected a multipart form with a \"file\" field"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, contract.InvalidInput("audio file did not arrive at the server"))
		return
	}
	defer file.Close()
	switch {
	case header.Size == 0:
		writeError(w, r, contract.InvalidInput("the recording is empty, please record again"))
		return
	case header.Size > s.opts.MaxUploadBytes:
		writeError(w, r, contract.InvalidInput("the recording is too large, the limit is %d bytes", s.opts.MaxUploadBytes))
		return
	}

	res, err := s.p.Transcribe(r.Context(), sessionID(r.Context()), stt.Audio{
		Data:        file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	var analysis any = res.Analysis
	if res.AnalysisErr != nil {
		_, msg := statusFor(res.AnalysisErr)
		analysis = map[string]string{"error": msg}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":        res.Text,
		"language":    res.Language,
		"analysis":    analysis,
		"corrections": nonNil(res.Corrections),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func orEmpty(f contract.Fields) contract.Fields {
	if f == nil {
		return contract.Fields{}
	}
	return f
}
