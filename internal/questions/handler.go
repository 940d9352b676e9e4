package questions

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/permitprep/backend/internal/content"
	"github.com/permitprep/backend/internal/middleware"
	"github.com/permitprep/backend/internal/models"
)

// maxImportBytes bounds admin import payloads.
const maxImportBytes = 50 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the learner test routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/tests/sessions/{sessionID}", h.GetTestSession).Methods("GET")
	r.HandleFunc("/tests/sessions/{sessionID}/submit", h.SubmitTest).Methods("POST")
	r.HandleFunc("/tests/{jurisdiction}/{index:[0-9]+}/start", h.StartTest).Methods("POST")
}

// RegisterAdmin mounts bank maintenance routes. The caller guards them.
func (h *Handler) RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/admin/questions/import", h.ImportQuestions).Methods("POST")
	r.HandleFunc("/admin/questions/export", h.ExportQuestions).Methods("GET")
	r.HandleFunc("/admin/bank/report", h.BankReport).Methods("GET")
}

func (h *Handler) StartTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	vars := mux.Vars(r)
	j, err := NormalizeJurisdiction(vars["jurisdiction"])
	if err != nil {
		writeError(w, err)
		return
	}
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid test index"})
		return
	}

	resp, err := h.service.StartTest(r.Context(), userID, j, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetTestSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	resp, err := h.service.GetTestSession(r.Context(), userID, mux.Vars(r)["sessionID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SubmitTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	var req models.SubmitTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.service.SubmitTest(r.Context(), userID, mux.Vars(r)["sessionID"], req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ── Admin ───────────────────────────────────────────────

func (h *Handler) ImportQuestions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	defaultJurisdiction := r.URL.Query().Get("jurisdiction")
	result, err := h.service.Import(r.Context(), data, defaultJurisdiction)
	if err != nil {
		if errors.Is(err, content.ErrInvalidJSON) || errors.Is(err, content.ErrNoQuestions) || errors.Is(err, content.ErrSchema) {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Import failed: " + err.Error()})
			return
		}
		log.Printf("[questions] import failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Import failed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ExportQuestions(w http.ResponseWriter, r *http.Request) {
	envelope, err := h.service.Export(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Export failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (h *Handler) BankReport(w http.ResponseWriter, r *http.Request) {
	verify, _ := strconv.ParseBool(r.URL.Query().Get("verify"))

	reports, err := h.service.BankReport(r.Context(), verify)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIndexOutOfRange), errors.Is(err, ErrUnknownJurisdiction):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Test session not found"})
	case errors.Is(err, ErrEmptySet):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrSessionClosed):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrVerifierUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[questions] %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
