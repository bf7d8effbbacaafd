package rest

import (
	"net/http"

	"github.com/abgdnv/storekeeper/internal/service"
	"github.com/abgdnv/storekeeper/internal/store"
	"github.com/abgdnv/storekeeper/pkg/web"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse never carries the password.
type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

// SignUp registers a new user.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var input service.SignUpInput
	if !web.DecodeJSON(w, r, mLogger, &input) {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to sign up", "email", input.Email)

	user, err := h.auth.SignUp(r.Context(), input)
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to sign up")
		return
	}
	mLogger.InfoContext(r.Context(), "User signed up", "ID", user.ID)
	web.RespondJSON(w, mLogger, http.StatusCreated, toUserResponse(user))
}

// LogIn checks credentials. No session is created.
func (h *Handler) LogIn(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req loginRequest
	if !web.DecodeJSON(w, r, mLogger, &req) {
		return
	}

	user, err := h.auth.LogIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, mLogger, err, "Failed to log in")
		return
	}
	mLogger.InfoContext(r.Context(), "User logged in", "ID", user.ID)
	web.RespondJSON(w, mLogger, http.StatusOK, toUserResponse(user))
}
