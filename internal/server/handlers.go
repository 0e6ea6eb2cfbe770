package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meshdrive/extshares/internal/identity"
	"github.com/meshdrive/extshares/internal/sharing"
	"github.com/meshdrive/extshares/internal/store"
)

// shareDTO is the API representation of a share record. The share token
// never leaves the server.
type shareDTO struct {
	ID         string `json:"id"`
	Remote     string `json:"remote"`
	RemoteID   string `json:"remoteId"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	ShareType  string `json:"shareType"`
	Accepted   bool   `json:"accepted"`
	Mountpoint string `json:"mountpoint,omitempty"`
}

func toShareDTO(rec *store.ShareRecord) shareDTO {
	dto := shareDTO{
		ID:        rec.ID,
		Remote:    rec.Remote,
		RemoteID:  rec.RemoteID,
		Name:      rec.Name,
		Owner:     rec.Owner,
		ShareType: rec.ShareType,
		Accepted:  rec.Accepted == store.StateAccepted,
	}
	if rec.Accepted == store.StateAccepted {
		dto.Mountpoint = rec.Mountpoint
	}
	return dto
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// incomingShare is the body of a federation share offer.
type incomingShare struct {
	Remote     string `json:"remote"`
	RemoteID   string `json:"remoteId"`
	ShareToken string `json:"shareToken"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	ShareWith  string `json:"shareWith"`
	ShareType  string `json:"shareType"`
}

// handleIncomingShare accepts a share offer from a remote server and stores
// it as pending.
func (s *Server) handleIncomingShare(w http.ResponseWriter, r *http.Request) {
	var in incomingShare
	if !decodeJSON(w, r, &in) {
		return
	}

	if in.Remote == "" || in.ShareToken == "" || in.Name == "" || in.ShareWith == "" {
		writeError(w, http.StatusBadRequest, "remote, shareToken, name and shareWith are required")
		return
	}

	shareType := in.ShareType
	if shareType == "" {
		shareType = store.ShareTypeUser
	}
	if shareType != store.ShareTypeUser && shareType != store.ShareTypeGroup {
		writeError(w, http.StatusBadRequest, "shareType must be user or group")
		return
	}

	if shareType == store.ShareTypeUser {
		if _, err := s.deps.Directory.GetUser(r.Context(), in.ShareWith); err != nil {
			if errors.Is(err, identity.ErrUserNotFound) {
				writeError(w, http.StatusNotFound, "unknown recipient")
				return
			}
			writeError(w, http.StatusInternalServerError, "recipient lookup failed")
			return
		}
	}

	_, err := s.deps.Manager.AddShare(r.Context(), sharing.AddShareParams{
		Remote:    in.Remote,
		Token:     in.ShareToken,
		Password:  in.Password,
		Name:      in.Name,
		Owner:     in.Owner,
		ShareType: shareType,
		User:      in.ShareWith,
		RemoteID:  in.RemoteID,
	})
	if err != nil {
		s.logger.Error("failed to store incoming share", "remote", in.Remote, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store share")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "pending"})
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())

	recs, err := s.deps.Manager.ListPendingShares(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list shares")
		return
	}

	dtos := make([]shareDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, toShareDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": dtos})
}

func (s *Server) handleGetShare(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())
	id := chi.URLParam(r, "shareID")

	rec, err := s.deps.Manager.GetShare(r.Context(), uid, id)
	if err != nil {
		s.writeShareError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShareDTO(rec))
}

func (s *Server) handleAcceptShare(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())
	id := chi.URLParam(r, "shareID")

	if err := s.deps.Manager.AcceptShare(r.Context(), uid, id); err != nil {
		s.writeShareError(w, err)
		return
	}

	rec, err := s.deps.Manager.GetShare(r.Context(), uid, id)
	if err != nil {
		// Accept succeeded; report that even if the re-read failed.
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
		return
	}
	writeJSON(w, http.StatusOK, toShareDTO(rec))
}

func (s *Server) handleDeclineShare(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())
	id := chi.URLParam(r, "shareID")

	if err := s.deps.Manager.DeclineShare(r.Context(), uid, id); err != nil {
		s.writeShareError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

func (s *Server) handleBadge(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())

	count := 0
	if s.deps.Badge != nil {
		count = s.deps.Badge.PendingCount(r.Context(), uid)
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": count})
}

type mountDTO struct {
	MountPoint string `json:"mountPoint"`
	StorageID  string `json:"storageId"`
	Kind       string `json:"kind"`
}

func (s *Server) handleListMounts(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())

	mounts, err := s.deps.Mounts.GetMountsForUser(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enumerate mounts")
		return
	}

	dtos := make([]mountDTO, 0, len(mounts))
	for _, m := range mounts {
		dtos = append(dtos, mountDTO{
			MountPoint: m.MountPoint(),
			StorageID:  m.Storage().ID(),
			Kind:       m.Kind(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"mounts": dtos})
}

type moveMountRequest struct {
	OldPath string `json:"oldPath"`
	NewPath string `json:"newPath"`
}

func (s *Server) handleMoveMount(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())

	var req moveMountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		writeError(w, http.StatusBadRequest, "oldPath and newPath are required")
		return
	}

	if err := s.deps.Manager.SetMountPoint(r.Context(), uid, req.OldPath, req.NewPath); err != nil {
		s.writeShareError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

type removeMountRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleRemoveMount(w http.ResponseWriter, r *http.Request) {
	uid := currentUser(r.Context())

	var req removeMountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	if err := s.deps.Manager.RemoveShare(r.Context(), uid, req.Path); err != nil {
		s.writeShareError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) writeShareError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sharing.ErrShareNotFound):
		writeError(w, http.StatusNotFound, "share not found")
	case errors.Is(err, sharing.ErrNotPermitted):
		writeError(w, http.StatusForbidden, "share not accessible")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
