package httpserver

import (
	"encoding/json"
	"net/http"

	"rtchat/internal/domain"
	"rtchat/internal/service"
)

type registerRequest struct {
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *domain.User `json:"user"`
}

func handleRegister(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidRequest)
			return
		}

		user, err := authSvc.Register(r.Context(), service.RegisterInput{
			Username: req.Username,
			Nickname: req.Nickname,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		// Auto-login after registration.
		resp, err := authSvc.Login(r.Context(), service.LoginInput{
			Username: user.Username,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tokenResponse{
			AccessToken: resp.AccessToken,
			TokenType:   resp.TokenType,
			User:        user,
		})
	}
}

func handleLogin(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, domain.ErrInvalidRequest)
			return
		}

		resp, err := authSvc.Login(r.Context(), service.LoginInput{
			Username: req.Username,
			Password: req.Password,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{
			AccessToken: resp.AccessToken,
			TokenType:   resp.TokenType,
			User:        resp.User,
		})
	}
}

func handleLogout(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}
		if err := authSvc.Logout(r.Context(), user.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeError(w, domain.ErrNoCredential)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
