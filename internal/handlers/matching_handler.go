package handlers

import (
	"encoding/json"
	"net/http"

	"conciliacion-service/internal/services"
)

type MatchingHandler struct {
	matchingService *services.MatchingService
	guard           *services.IntegrityGuard
}

func NewMatchingHandler(matchingService *services.MatchingService, guard *services.IntegrityGuard) *MatchingHandler {
	return &MatchingHandler{
		matchingService: matchingService,
		guard:           guard,
	}
}

func (h *MatchingHandler) Run(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	result, err := h.matchingService.Run(accountID, year, month)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *MatchingHandler) LinkManual(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ExtractMovementID int64  `json:"extract_movement_id"`
		SystemMovementID  int64  `json:"system_movement_id"`
		User              string `json:"user"`
		Notes             string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if request.ExtractMovementID == 0 || request.SystemMovementID == 0 {
		respondWithError(w, http.StatusBadRequest, "Both extract_movement_id and system_movement_id are required")
		return
	}

	match, err := h.matchingService.LinkManual(request.ExtractMovementID, request.SystemMovementID, request.User, request.Notes)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, match)
}

func (h *MatchingHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	extractID, err := pathID(r, "extract_id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if err := h.matchingService.Unlink(extractID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Match deleted"})
}

func (h *MatchingHandler) Ignore(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ExtractMovementID int64  `json:"extract_movement_id"`
		User              string `json:"user"`
		Reason            string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if request.ExtractMovementID == 0 {
		respondWithError(w, http.StatusBadRequest, "extract_movement_id is required")
		return
	}

	match, err := h.matchingService.Ignore(request.ExtractMovementID, request.User, request.Reason)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, match)
}

func (h *MatchingHandler) CreateAndLinkBatch(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Items []services.CreateMovementItem `json:"items"`
		User  string                        `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(request.Items) == 0 {
		respondWithError(w, http.StatusBadRequest, "No items provided")
		return
	}

	result := h.matchingService.CreateAndLinkBatch(request.Items, request.User)
	status := http.StatusOK
	if len(result.Errors) > 0 {
		status = http.StatusPartialContent
	}
	respondWithJSON(w, status, result)
}

func (h *MatchingHandler) SystemUniverse(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	movements, err := h.matchingService.SystemUniverse(accountID, year, month)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, movements)
}

func (h *MatchingHandler) DetectViolations(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	violations, err := h.guard.DetectOneToMany(accountID, year, month)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"violations": violations,
		"count":      len(violations),
	})
}

func (h *MatchingHandler) RepairViolations(w http.ResponseWriter, r *http.Request) {
	accountID, year, month, err := periodVars(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	deleted, err := h.guard.RepairOneToMany(accountID, year, month)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
