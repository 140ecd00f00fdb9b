package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/auth"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/forms"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/store"
)

type AccountHandler struct {
	Store        *store.Store
	SessionStore *sessions.CookieStore
	Templates    *TemplateCache
	SessionTTL   time.Duration
	BcryptCost   int // 0 means bcrypt.DefaultCost
}

func (h *AccountHandler) RegisterGet(w http.ResponseWriter, r *http.Request) {
	h.renderRegister(w, r, http.StatusOK, forms.RegisterForm{}, nil)
}

func (h *AccountHandler) RegisterPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	form := forms.ParseRegister(r)
	if errs := forms.Validate(form); errs != nil {
		h.renderRegister(w, r, http.StatusOK, form, errs)
		return
	}

	hash, err := auth.HashPassword(form.Password, h.BcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		h.renderRegister(w, r, http.StatusOK, form, forms.Errors{"password": "Must be at most 72 bytes."})
		return
	}
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	user := &models.User{Username: form.Username, Phone: form.Phone, Password: hash}
	if err := h.Store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			h.renderRegister(w, r, http.StatusOK, form, forms.Errors{"username": "Username already taken."})
			return
		}
		slog.Error("Failed to create user", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	slog.Info("User registered", "user_id", user.ID, "username", user.Username)

	session := getSession(h.SessionStore, r)
	session.AddFlash(FlashMessage{Type: "success", Message: "Account created! You can log in now."})
	saveSession(w, r, session)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AccountHandler) renderRegister(w http.ResponseWriter, r *http.Request, status int, form forms.RegisterForm, errs forms.Errors) {
	// Never echo passwords back.
	form.Password, form.ConfirmPassword = "", ""
	data := pageData(w, r, h.SessionStore)
	data["Title"] = "Register"
	data["Form"] = form
	data["Errors"] = errs
	h.Templates.Render(w, status, "register.html", data)
}

func (h *AccountHandler) LoginGet(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, forms.LoginForm{}, r.URL.Query().Get("next"), nil)
}

func (h *AccountHandler) LoginPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}
	form := forms.ParseLogin(r)
	next := r.PostFormValue("next")
	if errs := forms.Validate(form); errs != nil {
		h.renderLogin(w, r, form, next, errs)
		return
	}

	user, err := h.Store.GetUserByUsername(r.Context(), form.Username)
	if err != nil {
		slog.Error("Failed to look up user", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	hash := ""
	if user != nil {
		hash = user.Password
	}
	// Same message for unknown user and wrong password.
	if !auth.CheckPassword(hash, form.Password) || user == nil {
		slog.Info("Failed login attempt", "ip", clientIP(r))
		h.renderLogin(w, r, form, next, forms.Errors{"form": "Invalid username or password."})
		return
	}

	token, err := auth.NewSessionToken()
	if err != nil {
		slog.Error("Failed to create session token", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := h.Store.CreateSession(r.Context(), token, user.ID, time.Now().Add(h.SessionTTL)); err != nil {
		slog.Error("Failed to store session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	session := getSession(h.SessionStore, r)
	if old, ok := session.Values[tokenKey].(string); ok && old != "" {
		if err := h.Store.DeleteSession(r.Context(), old); err != nil {
			slog.Error("Failed to drop previous session", "error", err)
		}
	}
	session.Values[tokenKey] = token
	session.Options.MaxAge = int(h.SessionTTL.Seconds())
	session.AddFlash(FlashMessage{Type: "success", Message: "Welcome, " + user.Username + "!"})
	if err := session.Save(r, w); err != nil {
		slog.Error("Failed to save session", "error", err)
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	slog.Info("Login successful", "user_id", user.ID)
	http.Redirect(w, r, safeNext(next), http.StatusSeeOther)
}

func (h *AccountHandler) renderLogin(w http.ResponseWriter, r *http.Request, form forms.LoginForm, next string, errs forms.Errors) {
	form.Password = ""
	data := pageData(w, r, h.SessionStore)
	data["Title"] = "Log in"
	data["Form"] = form
	data["Next"] = next
	data["Errors"] = errs
	h.Templates.Render(w, http.StatusOK, "login.html", data)
}

// Logout always succeeds, with or without a session.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := getSession(h.SessionStore, r)
	if token, ok := session.Values[tokenKey].(string); ok && token != "" {
		if err := h.Store.DeleteSession(r.Context(), token); err != nil {
			slog.Error("Failed to delete session", "error", err)
		}
	}
	delete(session.Values, tokenKey)
	session.Options.MaxAge = -1 // Expire immediately
	saveSession(w, r, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
