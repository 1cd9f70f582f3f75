package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"MuseFM/cache"
	"MuseFM/config"
	"MuseFM/core/auth"
	"MuseFM/model"
	"MuseFM/repository"
	"MuseFM/storage"

	"github.com/gorilla/mux"
)

// searchResultLimit caps catalog search responses.
const searchResultLimit = 50

// APIHandler handles all API requests.
type APIHandler struct {
	trackRepo  repository.TrackRepository
	recentRepo repository.RecentPlayRepository
	userRepo   repository.UserRepository
	resolver   *storage.Resolver
	store      storage.ObjectStore
	snapshots  *cache.PlayerStateCache
	cfg        *config.Config
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(
	trackRepo repository.TrackRepository,
	recentRepo repository.RecentPlayRepository,
	userRepo repository.UserRepository,
	resolver *storage.Resolver,
	store storage.ObjectStore,
	snapshots *cache.PlayerStateCache,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		trackRepo:  trackRepo,
		recentRepo: recentRepo,
		userRepo:   userRepo,
		resolver:   resolver,
		store:      store,
		snapshots:  snapshots,
		cfg:        cfg,
	}
}

// AuthMiddleware checks for a valid JWT bearer token and puts the user's
// identity on the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

func trackIDFromRequest(r *http.Request) (int64, error) {
	idStr := mux.Vars(r)["track_id"]
	return strconv.ParseInt(idStr, 10, 64)
}

// GetTracksHandler returns every track in the catalog, newest first.
func (h *APIHandler) GetTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackRepo.GetAllTracks()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve tracks: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tracks)
}

// GetTrackHandler returns a single track by id.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := trackIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to retrieve track: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(track)
}

// SearchTracksHandler matches the query against title, artist and album.
// An empty query returns an empty list rather than the whole catalog.
func (h *APIHandler) SearchTracksHandler(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	results := []*model.Track{}
	if query != "" {
		var err error
		results, err = h.trackRepo.SearchTracks(query, searchResultLimit)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to search tracks: %v", err), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// RecordRecentPlayHandler appends a track to the caller's recently-played
// history, deduplicating and trimming to the retention cap.
func (h *APIHandler) RecordRecentPlayHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	trackID, err := trackIDFromRequest(r)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}

	if _, err := h.trackRepo.GetTrackByID(trackID); err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to verify track: %v", err), http.StatusInternalServerError)
		return
	}

	if err := h.recentRepo.RecordPlay(userID, trackID); err != nil {
		http.Error(w, fmt.Sprintf("Failed to record play: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetRecentPlaysHandler returns the caller's recently-played tracks,
// newest first.
func (h *APIHandler) GetRecentPlaysHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entries, err := h.recentRepo.GetRecentPlays(userID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve recent plays: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
