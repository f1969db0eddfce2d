package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rtchat/internal/chat"
	"rtchat/internal/domain"
)

type createMessageRequest struct {
	Content    string `json:"content"`
	RoomID     string `json:"roomId"`
	ReceiverID string `json:"receiverId"`
	Kind       string `json:"type"`
	FileURL    string `json:"fileUrl"`
	FileName   string `json:"fileName"`
	ReplyToID  string `json:"replyTo"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// handleListMessages returns room history in chronological order. `before`
// is an RFC3339 cursor; omit it for the latest page.
func handleListMessages(engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}

		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			roomID = chat.GlobalRoom
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, domain.ErrInvalidRequest)
				return
			}
			limit = n
		}

		var before time.Time
		if v := r.URL.Query().Get("before"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, domain.ErrInvalidRequest)
				return
			}
			before = t
		}

		messages, err := engine.History(r.Context(), roomID, user.ID, limit, before)
		if err != nil {
			writeError(w, err)
			return
		}
		if messages == nil {
			messages = []*chat.MessageDTO{}
		}
		writeJSON(w, http.StatusOK, messages)
	}
}

func handleCreateMessage(engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}

		var req createMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidRequest)
			return
		}

		dto, err := engine.Create(r.Context(), chat.CreateInput{
			SenderID:   user.ID,
			Content:    req.Content,
			RoomID:     req.RoomID,
			Kind:       domain.MessageKind(req.Kind),
			ReceiverID: req.ReceiverID,
			ReplyToID:  req.ReplyToID,
			FileURL:    req.FileURL,
			FileName:   req.FileName,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, dto)
	}
}

func handleEditMessage(engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}

		var req editMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidRequest)
			return
		}

		dto, err := engine.Edit(r.Context(), chi.URLParam(r, "messageID"), user.ID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dto)
	}
}

func handleDeleteMessage(engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}

		forEveryone, _ := strconv.ParseBool(r.URL.Query().Get("forEveryone"))
		if err := engine.Delete(r.Context(), chi.URLParam(r, "messageID"), user.ID, forEveryone); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMarkDelivered(engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}
		if err := engine.Deliver(r.Context(), chi.URLParam(r, "messageID"), user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMarkSeen(engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}
		if err := engine.See(r.Context(), chi.URLParam(r, "messageID"), user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleToggleReaction(engine *chat.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}

		var req reactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
			writeError(w, domain.ErrInvalidRequest)
			return
		}
		if err := engine.ToggleReaction(r.Context(), chi.URLParam(r, "messageID"), user.ID, req.Emoji); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
