package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/bugtrail/apiserver/internal/storage"
	"github.com/go-chi/chi/v5"
)

const (
	maxAvatarBytes  = 5 << 20
	formFieldAvatar = "avatar"
)

// AvatarHandler serves profile avatars backed by object storage.
type AvatarHandler struct {
	storage *storage.Storage
}

func NewAvatarHandler(store *storage.Storage) *AvatarHandler {
	return &AvatarHandler{storage: store}
}

// AvatarRouter registers avatar routes. All routes require identity.
func AvatarRouter(r chi.Router, store *storage.Storage, resolver IdentityResolver) {
	handler := NewAvatarHandler(store)
	identity := RequireIdentity(resolver)

	r.With(identity).Post("/avatar", handler.Upload)
	r.With(identity).Get("/avatar", handler.Fetch)
}

// Upload stores the caller's avatar under avatars/{userID}, replacing
// any previous one.
func (h *AvatarHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldAvatar)
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()

	if header.Size > maxAvatarBytes {
		writeError(w, http.StatusBadRequest, "avatar exceeds size limit")
		return
	}

	contentType := header.Header.Get("Content-Type")
	key := avatarKey(userID)
	if err := h.storage.Put(r.Context(), key, file, header.Size, contentType); err != nil {
		log.Printf("store avatar: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, http.StatusOK, nil, "avatar uploaded successfully")
}

// Fetch streams the caller's avatar.
func (h *AvatarHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	object, err := h.storage.Get(r.Context(), avatarKey(userID))
	if err != nil {
		writeError(w, http.StatusNotFound, "avatar not found")
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, object); err != nil {
		log.Printf("stream avatar: %v", err)
	}
}

func avatarKey(userID int) string {
	return fmt.Sprintf("avatars/%d", userID)
}
