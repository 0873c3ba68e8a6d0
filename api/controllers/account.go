package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/api/validators"
	"github.com/angelmondragon/miravo-storefront/internal/auth"
	"github.com/angelmondragon/miravo-storefront/internal/commerce"
	"github.com/angelmondragon/miravo-storefront/internal/profiles"
	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// ProfileService reads and edits account profiles.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Update(ctx context.Context, userID string, update profiles.Update) (*models.Profile, error)
}

// AvatarService stores profile images.
type AvatarService interface {
	UploadAvatar(ctx context.Context, userID, accessToken string, file profiles.AvatarFile) (*models.Profile, error)
}

// avatarFormOverhead leaves room for the multipart boundaries and headers.
const avatarFormOverhead = 64 << 10

// OrderHistory lists a customer's orders.
type OrderHistory interface {
	Orders(ctx context.Context, customerID, email string) ([]commerce.Order, error)
}

type ordersResponse struct {
	Orders []commerce.Order `json:"orders"`
}

func signedInUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (*auth.User, bool) {
	client, ok := runtimeFor(w, r, logg)
	if !ok {
		return nil, false
	}
	user := client.Bridge.State().User
	if user == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated"))
		return nil, false
	}
	return user, true
}

// AccountProfile returns the signed-in user's profile. The data is null
// until the profile row exists.
func AccountProfile(svc ProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profile service unavailable"))
			return
		}
		user, ok := signedInUser(w, r, logg)
		if !ok {
			return
		}

		profile, err := svc.Get(ctx, user.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

func AccountUpdateProfile(svc ProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profile service unavailable"))
			return
		}
		user, ok := signedInUser(w, r, logg)
		if !ok {
			return
		}

		var body profiles.Update
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		profile, err := svc.Update(ctx, user.ID, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if client, ok := runtimeFor(w, r, logg); ok {
			client.Bridge.RefreshProfile(ctx)
		}
		responses.WriteSuccess(w, profile)
	}
}

// AccountUploadAvatar accepts a multipart "file" field and sets it as the
// signed-in user's avatar.
func AccountUploadAvatar(svc AvatarService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "avatar storage unavailable"))
			return
		}
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		user, ok := signedInUser(w, r, logg)
		if !ok {
			return
		}
		session, err := client.Auth.GetSession(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if session == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Not authenticated"))
			return
		}

		file, err := readAvatarFile(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		profile, err := svc.UploadAvatar(ctx, user.ID, session.AccessToken, file)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		client.Bridge.RefreshProfile(ctx)
		responses.WriteSuccess(w, profile)
	}
}

func readAvatarFile(w http.ResponseWriter, r *http.Request) (profiles.AvatarFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, profiles.MaxAvatarBytes+avatarFormOverhead)
	part, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return profiles.AvatarFile{}, pkgerrors.New(pkgerrors.CodeValidation, "Image must be less than 2MB").
				WithDetails(map[string]any{"limit_bytes": profiles.MaxAvatarBytes})
		}
		return profiles.AvatarFile{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "multipart field \"file\" is required")
	}
	defer func() { _ = part.Close() }()
	data, err := io.ReadAll(io.LimitReader(part, profiles.MaxAvatarBytes+1))
	if err != nil {
		return profiles.AvatarFile{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read avatar upload")
	}
	return profiles.AvatarFile{Name: header.Filename, Data: data}, nil
}

// AccountOrders lists the order history of the signed-in user, using the
// linked commerce customer when there is one and the email otherwise.
func AccountOrders(profilesSvc ProfileService, history OrderHistory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if profilesSvc == nil || history == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order history unavailable"))
			return
		}
		user, ok := signedInUser(w, r, logg)
		if !ok {
			return
		}

		profile, err := profilesSvc.Get(ctx, user.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		customerID, email := "", user.Email
		if profile != nil {
			if profile.ShopifyCustomerID != nil {
				customerID = *profile.ShopifyCustomerID
			}
			if profile.Email != nil && *profile.Email != "" {
				email = *profile.Email
			}
		}

		orders, err := history.Orders(ctx, customerID, email)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, ordersResponse{Orders: orders})
	}
}
