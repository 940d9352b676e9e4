package progress

import (
	"encoding/json"
	"log"
	"net/http"

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

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/progress/{jurisdiction}", h.GetOverview).Methods("GET")
	r.HandleFunc("/progress/{jurisdiction}/readiness", h.GetReadiness).Methods("GET")
}

func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	j, err := questions.NormalizeJurisdiction(mux.Vars(r)["jurisdiction"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	overview, err := h.service.Overview(r.Context(), userID, j)
	if err != nil {
		log.Printf("[progress] overview for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to load progress"})
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}
	j, err := questions.NormalizeJurisdiction(mux.Vars(r)["jurisdiction"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	p, err := h.service.Readiness(r.Context(), userID, j)
	if err != nil {
		log.Printf("[progress] readiness for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to compute readiness"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pass_probability": p})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
