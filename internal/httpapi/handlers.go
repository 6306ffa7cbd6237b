// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veridian Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/veridianid/veridian/internal/auth"
	"github.com/veridianid/veridian/pkg/errutil"
)

// Request payloads. Field names mirror the public API contract.

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequest struct {
	// Identifier may be a username or an email. "username" is accepted as
	// an alias so older clients keep working.
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type changePasswordRequest struct {
	OldPassword        string `json:"old_password"`
	NewPassword        string `json:"new_password"`
	ConfirmNewPassword string `json:"confirm_new_password"`
}

type updateProfileRequest struct {
	Username    *string `json:"username"`
	DisplayName *string `json:"name"`
}

// tokenResponse carries an issued pair alongside the account view.
type tokenResponse struct {
	User    auth.PublicAccount `json:"user"`
	Access  string             `json:"access"`
	Refresh string             `json:"refresh"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.services.Registration.Register(r.Context(), auth.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, tokenResponse{
		User:    result.Account,
		Access:  result.Tokens.AccessToken,
		Refresh: result.Tokens.RefreshToken,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	identifier := req.Identifier
	if identifier == "" {
		identifier = req.Username
	}

	result, err := s.services.Auth.Login(r.Context(), identifier, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, tokenResponse{
		User:    result.Account,
		Access:  result.Tokens.AccessToken,
		Refresh: result.Tokens.RefreshToken,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}

	pair, err := s.rotator.Rotate(r.Context(), req.Refresh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"access":  pair.AccessToken,
		"refresh": pair.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.services.Session.Terminate(r.Context(), req.Refresh); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusResetContent)
}

func (s *Server) handleGetSelf(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r.Context())
	if !ok {
		s.writeAuthRequired(w)
		return
	}

	view, err := s.services.Auth.GetSelf(r.Context(), accountID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r.Context())
	if !ok {
		s.writeAuthRequired(w)
		return
	}

	var req updateProfileRequest
	if !s.decode(w, r, &req) {
		return
	}

	view, err := s.services.Profile.Update(r.Context(), accountID, auth.ProfileUpdate{
		Username:    req.Username,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDFrom(r.Context())
	if !ok {
		s.writeAuthRequired(w)
		return
	}

	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.services.Password.Change(r.Context(), accountID, auth.PasswordChangeInput{
		OldPassword:        req.OldPassword,
		NewPassword:        req.NewPassword,
		ConfirmNewPassword: req.ConfirmNewPassword,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string][]string{
			"general": {"Request body must be valid JSON."},
		})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeAuthRequired(w http.ResponseWriter) {
	s.writeJSON(w, http.StatusUnauthorized, map[string][]string{
		"general": {"Authentication credentials were not provided or are invalid."},
	})
}

// writeError maps core errors onto HTTP responses. Field errors become
// per-field message lists, exactly the payload shape clients render;
// anything else is logged and collapsed to a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if fieldErrs, ok := auth.AsFieldErrors(err); ok {
		s.writeJSON(w, http.StatusBadRequest, fieldErrs.ByField())
		return
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		s.writeJSON(w, http.StatusBadRequest, map[string][]string{
			"refresh": {"Token is invalid."},
		})
		return
	}
	if errors.Is(err, auth.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string][]string{
			"general": {"Account not found."},
		})
		return
	}

	errutil.LogError(s.logger, "request failed", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string][]string{
		"general": {"Something went wrong. Please try again."},
	})
}
