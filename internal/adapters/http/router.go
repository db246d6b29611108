package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
	"github.com/dkruglov/exam-ingest/internal/core/ports"
)

type Router struct {
	ingestor ports.DocumentIngestor
	reader   ports.DocumentReader
	control  ports.PipelineController
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	control ports.PipelineController,
) *Router {
	return &Router{
		ingestor: ingestor,
		reader:   reader,
		control:  control,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	expectedQuestions := 0
	if raw := strings.TrimSpace(r.FormValue("expected_questions")); raw != "" {
		expectedQuestions, err = strconv.Atoi(raw)
		if err != nil || expectedQuestions < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected_questions must be a non-negative integer"})
			return
		}
	}

	doc, err := rt.ingestor.Upload(r.Context(), ports.UploadRequest{
		Filename:          fileHeader.Filename,
		Category:          strings.TrimSpace(r.FormValue("category")),
		Subject:           strings.TrimSpace(r.FormValue("subject")),
		ExpectedQuestions: expectedQuestions,
	}, file)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

// documentSubtree dispatches /v1/documents/{id} and its control verbs.
func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch action {
	case "":
		rt.getDocumentStatus(w, r, id)
	case "questions":
		rt.listQuestions(w, r, id)
	case "pause", "resume", "cancel", "discard":
		rt.controlDocument(w, r, id, action)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
	}
}

func (rt *Router) getDocumentStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	status, err := rt.reader.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) listQuestions(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	questions, err := rt.reader.ListQuestions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if questions == nil {
		questions = []*domain.ExtractedQuestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (rt *Router) controlDocument(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var err error
	switch action {
	case "pause":
		err = rt.control.Pause(r.Context(), id)
	case "resume":
		err = rt.control.Resume(r.Context(), id)
	case "cancel":
		err = rt.control.Cancel(r.Context(), id)
	case "discard":
		err = rt.control.Discard(r.Context(), id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"document_id": id, "action": action})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
