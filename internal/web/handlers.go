package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/me-box/databox-driver-phillipshue/internal/hue"
	"github.com/me-box/databox-driver-phillipshue/internal/ledger"
	"github.com/me-box/databox-driver-phillipshue/internal/settings"
)

const (
	statusActive         = "active"
	statusRequiresConfig = "requiresConfig"

	msgNoBridges = "no bridges found"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.Active() {
		w.Write([]byte(statusActive))
		return
	}
	w.Write([]byte(statusRequiresConfig))
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if !s.Active() {
		if err := pairTemplate.Execute(w, nil); err != nil {
			log.Error().Err(err).Msg("Failed to render pairing page")
		}
		return
	}

	page := statusPage{
		Lights:  s.cache.Lights(),
		Sensors: s.cache.Sensors(),
	}
	if s.activity != nil {
		entries, err := s.activity.Recent(r.Context(), recentActivityLimit,
			ledger.EventActuationApplied, ledger.EventActuationRejected, ledger.EventActuationFailed)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load recent activity")
		}
		page.Activity = entries
	}

	if err := statusTemplate.Execute(w, page); err != nil {
		log.Error().Err(err).Msg("Failed to render status page")
	}
}

type pairRequest struct {
	Address string `json:"address"`
	Title   string `json:"title"`
}

// handlePair pairs with the bridge at the submitted address, or with the
// first discovered bridge when the address is blank.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	address, err := readAddress(r)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	if address == "" {
		bridges, err := s.pairer.Discover(ctx)
		if err != nil || len(bridges) == 0 {
			if err != nil && !errors.Is(err, hue.ErrNoBridges) {
				log.Warn().Err(err).Msg("Bridge discovery failed")
			}
			http.Error(w, msgNoBridges, http.StatusUnauthorized)
			return
		}
		address = bridges[0].Address
		log.Info().Str("address", address).Int("found", len(bridges)).Msg("Discovered Hue bridge")
	}

	credential, err := s.pairer.Pair(ctx, address)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("Pairing failed")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		if err := pairFailedTemplate.Execute(w, pairFailure{Address: address, Err: err.Error()}); err != nil {
			log.Error().Err(err).Msg("Failed to render pairing failure page")
		}
		return
	}

	if err := s.settings.Set(ctx, settings.Settings{Hostname: address, Credential: credential}); err != nil {
		log.Error().Err(err).Msg("Failed to persist settings")
		http.Error(w, "Failed to save settings", http.StatusInternalServerError)
		return
	}

	if s.Active() {
		log.Info().Str("address", address).Msg("Settings replaced, restart to use the new bridge")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := pairedTemplate.Execute(w, address); err != nil {
		log.Error().Err(err).Msg("Failed to render paired page")
	}
}

// readAddress accepts form posts and JSON bodies. "title" is the field name
// used by older pairing pages.
func readAddress(r *http.Request) (string, error) {
	var req pairRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", fmt.Errorf("decode pair request: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("parse pair form: %w", err)
		}
		req.Address = r.PostForm.Get("address")
		req.Title = r.PostForm.Get("title")
	}

	address := strings.TrimSpace(req.Address)
	if address == "" {
		address = strings.TrimSpace(req.Title)
	}
	return address, nil
}
