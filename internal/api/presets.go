package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/draftforge/backend/internal/middleware"
	"github.com/draftforge/backend/internal/store"
)

const maxPresetNameLen = 40

type createPresetRequest struct {
	Name          string          `json:"name"`
	CharCost      json.RawMessage `json:"charCost"`
	AccessoryCost json.RawMessage `json:"accessoryCost"`
}

func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	presets, err := s.store.ListPresetsByOwner(r.Context(), owner)
	if err != nil {
		respondInternal(w, "list presets", err)
		return
	}
	shaped := make([]*shapedPreset, 0, len(presets))
	for _, p := range presets {
		shaped = append(shaped, shapePreset(p))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"presets": shaped,
		"count":   len(shaped),
	})
}

func (s *Server) handleCreatePreset(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	if !s.limiter.Check(w, bucketOwner, owner) {
		return
	}

	var req createPresetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Name == "" || len(req.Name) > maxPresetNameLen {
		respondError(w, http.StatusBadRequest, "name must be 1-40 characters")
		return
	}
	if err := validateCostMap(req.CharCost, 7); err != nil {
		respondError(w, http.StatusBadRequest, "charCost: "+err.Error())
		return
	}
	if err := validateCostMap(req.AccessoryCost, 5); err != nil {
		respondError(w, http.StatusBadRequest, "accessoryCost: "+err.Error())
		return
	}

	now := time.Now()
	preset := &store.Preset{
		ID:            uuid.New().String(),
		OwnerID:       owner,
		Name:          req.Name,
		CharCost:      orEmptyObject(req.CharCost),
		AccessoryCost: orEmptyObject(req.AccessoryCost),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreatePreset(r.Context(), preset); err != nil {
		if errors.Is(err, store.ErrPresetQuota) {
			respondError(w, http.StatusConflict, "preset limit reached")
			return
		}
		respondInternal(w, "create preset", err)
		return
	}
	respondJSON(w, http.StatusCreated, shapePreset(preset))
}

func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	if !s.limiter.Check(w, bucketOwner, owner) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.store.DeletePreset(r.Context(), id, owner); err != nil {
		if isNotFound(err) {
			respondError(w, http.StatusNotFound, "preset not found")
			return
		}
		respondInternal(w, "delete preset", err)
		return
	}
	// Referencing sessions stay valid; the store clears the reference.
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// validateCostMap checks an id -> fixed-length-number-vector map.
func validateCostMap(raw json.RawMessage, arity int) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m map[string][]float64
	if err := json.Unmarshal(raw, &m); err != nil {
		return errors.New("must map ids to number vectors")
	}
	for id, vec := range m {
		if len(vec) != arity {
			return fmt.Errorf("vector for %s must have exactly %d entries", id, arity)
		}
	}
	return nil
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}
