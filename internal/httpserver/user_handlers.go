package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rtchat/internal/domain"
	"rtchat/internal/presence"
	"rtchat/internal/service"
)

func handleListUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListActive(r.Context(), 0, 100)
		if err != nil {
			writeError(w, err)
			return
		}
		if users == nil {
			users = []*domain.User{}
		}
		writeJSON(w, http.StatusOK, users)
	}
}

// handleListOnlineUsers cross-checks the persisted online flag against the
// presence registry, so a stale flag left by a crashed instance never leaks
// into the response.
func handleListOnlineUsers(userSvc *service.UserService, registry *presence.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListOnline(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		online := make([]*domain.User, 0, len(users))
		for _, u := range users {
			if registry.IsOnline(u.ID) {
				online = append(online, u)
			}
		}
		writeJSON(w, http.StatusOK, online)
	}
}

func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userSvc.GetByID(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, err)
			return
		}
		if user == nil {
			writeError(w, domain.ErrNotFound)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func handleBlockUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}
		if err := userSvc.Block(r.Context(), user.ID, chi.URLParam(r, "userID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUnblockUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}
		if err := userSvc.Unblock(r.Context(), user.ID, chi.URLParam(r, "userID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
