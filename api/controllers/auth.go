package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/api/validators"
	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/authbridge"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// Messages shown by the account forms.
const (
	MessageConfirmEmail  = "Check your email to confirm your account."
	MessageResetSent     = "If an account exists for that email, a reset link is on its way."
	MessagePasswordSaved = "Your password has been updated."
)

// SignUpProfiles creates the account profile for a new user.
type SignUpProfiles interface {
	CreateForSignUp(ctx context.Context, userID, email, fullName string)
}

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,max=128"`
	FullName string `json:"full_name" validate:"max=200"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email,max=320"`
	Password string `json:"password" validate:"required,max=128"`
}

type oauthRequest struct {
	Provider   string `json:"provider" validate:"required,oneof=google apple github"`
	RedirectTo string `json:"redirect_to" validate:"omitempty,url"`
}

type recoverRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type setSessionRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type updateUserRequest struct {
	Password string  `json:"password" validate:"omitempty,max=128"`
	FullName *string `json:"full_name" validate:"omitempty,max=200"`
}

type signUpResponse struct {
	User    auth.User        `json:"user"`
	Auth    authbridge.State `json:"auth"`
	Message string           `json:"message,omitempty"`
}

type oauthResponse struct {
	URL string `json:"url"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AuthSignUp registers a shopper. The profile row and commerce customer are
// created best effort; a failure there does not fail the sign-up.
func AuthSignUp(profiles SignUpProfiles, siteURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var body signUpRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := auth.ValidateNewPassword(body.Password); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		email := normalizeEmail(body.Email)
		fullName := validators.SanitizeString(body.FullName, 200)
		user, session, err := client.Auth.SignUp(r.Context(), auth.SignUpParams{
			Email:      email,
			Password:   body.Password,
			FullName:   fullName,
			RedirectTo: siteURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}

		if profiles != nil && user.ID != "" {
			profiles.CreateForSignUp(r.Context(), user.ID, email, fullName)
		}
		settle(r, client, logg)
		if session != nil {
			client.Bridge.RefreshProfile(r.Context())
		}

		resp := signUpResponse{User: user, Auth: client.Bridge.State()}
		if session == nil {
			resp.Message = MessageConfirmEmail
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// AuthSignIn signs in with email and password. The response carries the
// auth state after the guest wishlist has been merged.
func AuthSignIn(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var body signInRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := client.Auth.SignIn(r.Context(), normalizeEmail(body.Email), body.Password); err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}
		settle(r, client, logg)
		responses.WriteSuccess(w, client.Bridge.State())
	}
}

// AuthOAuth returns the provider authorize URL the browser is sent to.
func AuthOAuth(siteURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var body oauthRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		redirectTo := body.RedirectTo
		if redirectTo == "" {
			redirectTo = siteURL
		}

		url, err := client.Auth.SignInWithOAuth(r.Context(), body.Provider, redirectTo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}
		responses.WriteSuccess(w, oauthResponse{URL: url})
	}
}

// AuthSignOut starts a fresh guest cart, detaches the wishlist and ends the
// provider session.
func AuthSignOut(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		if err := client.Bridge.SignOut(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}
		settle(r, client, logg)
		responses.WriteSuccess(w, client.Bridge.State())
	}
}

// AuthRecover sends a password reset email. The response does not reveal
// whether the address is registered.
func AuthRecover(siteURL string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var body recoverRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redirectTo := strings.TrimSuffix(siteURL, "/") + "/reset-password"
		if err := client.Auth.ResetPasswordForEmail(r.Context(), normalizeEmail(body.Email), redirectTo); err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}
		responses.WriteSuccess(w, messageResponse{Message: MessageResetSent})
	}
}

// AuthSetSession restores a session from the tokens an OAuth or recovery
// redirect hands back.
func AuthSetSession(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var body setSessionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if _, err := client.Auth.SetSession(r.Context(), body.AccessToken, body.RefreshToken); err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}
		settle(r, client, logg)
		responses.WriteSuccess(w, client.Bridge.State())
	}
}

func AuthRefresh(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		if _, err := client.Auth.RefreshSession(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}
		settle(r, client, logg)
		responses.WriteSuccess(w, client.Bridge.State())
	}
}

// AuthUpdateUser changes the signed-in user's password or display name.
func AuthUpdateUser(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var body updateUserRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Password == "" && body.FullName == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update"))
			return
		}
		if body.Password != "" {
			if err := auth.ValidateNewPassword(body.Password); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		update := auth.UserUpdate{Password: body.Password}
		if body.FullName != nil {
			update.Data = map[string]any{"full_name": validators.SanitizeString(*body.FullName, 200)}
		}
		user, err := client.Auth.UpdateUser(r.Context(), update)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, auth.ToAppError(err))
			return
		}
		settle(r, client, logg)

		resp := map[string]any{"user": user}
		if body.Password != "" {
			resp["message"] = MessagePasswordSaved
		}
		responses.WriteSuccess(w, resp)
	}
}

// AuthSession returns the current auth state of the tab.
func AuthSession(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, client.Bridge.State())
	}
}
