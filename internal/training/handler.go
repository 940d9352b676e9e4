package training

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/permitprep/backend/internal/middleware"
	"github.com/permitprep/backend/internal/models"
	"github.com/permitprep/backend/internal/questions"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the training routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/training/{jurisdiction}/sets/{index:[0-9]+}/next", h.Next).Methods("GET")
	r.HandleFunc("/training/{jurisdiction}/sets/{index:[0-9]+}/answers", h.Answer).Methods("POST")
	r.HandleFunc("/training/{jurisdiction}/sets/{index:[0-9]+}/reset", h.Reset).Methods("POST")
	r.HandleFunc("/training/{jurisdiction}/sets/{index:[0-9]+}/progress", h.Progress).Methods("GET")
	r.HandleFunc("/training/{jurisdiction}/onboarding/next", h.Next).Methods("GET")
	r.HandleFunc("/training/{jurisdiction}/onboarding/answers", h.Answer).Methods("POST")
	r.HandleFunc("/training/{jurisdiction}/onboarding/progress", h.Progress).Methods("GET")
}

// parseTarget reads the jurisdiction and optional set index from the path.
// Onboarding routes carry no index and map to SetIndex 0.
func parseTarget(r *http.Request) (Target, error) {
	vars := mux.Vars(r)
	j, err := questions.NormalizeJurisdiction(vars["jurisdiction"])
	if err != nil {
		return Target{}, err
	}
	t := Target{Jurisdiction: j}
	if raw, ok := vars["index"]; ok {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 1 {
			return Target{}, questions.ErrIndexOutOfRange
		}
		t.SetIndex = idx
	}
	return t, nil
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	t, err := parseTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.service.Next(r.Context(), userID, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	t, err := parseTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req models.TrainingAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.QuestionID == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "question_id is required"})
		return
	}

	resp, err := h.service.Answer(r.Context(), userID, t, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	t, err := parseTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}

	progress, err := h.service.Reset(r.Context(), userID, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	t, err := parseTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}

	progress, err := h.service.Progress(r.Context(), userID, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, questions.ErrIndexOutOfRange),
		errors.Is(err, questions.ErrUnknownJurisdiction),
		errors.Is(err, ErrInvalidAnswer),
		errors.Is(err, ErrNotInSet):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrLocked):
		writeJSON(w, http.StatusForbidden, models.ErrorResponse{Error: err.Error()})
	default:
		log.Printf("[training] handler error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
