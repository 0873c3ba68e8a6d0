package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/api/validators"
	"github.com/angelmondragon/miravo-storefront/internal/customers"
	"github.com/angelmondragon/miravo-storefront/internal/emailcapture"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// CustomerSyncer runs the customer sync actions.
type CustomerSyncer interface {
	Sync(ctx context.Context, req customers.Request) (customers.Response, error)
}

// EmailCapturer records a newsletter signup and hands out its discount code.
type EmailCapturer interface {
	Capture(ctx context.Context, email, name string) (emailcapture.Result, error)
}

type captureEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
	Name  string `json:"name" validate:"max=200"`
}

// SyncShopifyCustomer answers with the bare sync response, without the data
// envelope, to match the callable function contract.
func SyncShopifyCustomer(svc CustomerSyncer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer sync unavailable"))
			return
		}

		var body customers.Request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp, err := svc.Sync(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, resp)
	}
}

func CaptureEmail(svc EmailCapturer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "email capture unavailable"))
			return
		}

		var body captureEmailRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Capture(ctx, normalizeEmail(body.Email), validators.SanitizeString(body.Name, 200))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, result)
	}
}
