package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	"github.com/angelmondragon/miravo-storefront/api/validators"
	"github.com/angelmondragon/miravo-storefront/internal/cart"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
	"github.com/angelmondragon/miravo-storefront/pkg/types"
)

type cartResponse struct {
	cart.Cart
	TotalQuantity int         `json:"totalQuantity"`
	Subtotal      types.Money `json:"subtotal"`
}

func newCartResponse(c cart.Cart) cartResponse {
	return cartResponse{Cart: c, TotalQuantity: c.TotalQuantity(), Subtotal: c.Subtotal()}
}

type addCartItemRequest struct {
	VariantID       string                `json:"variant_id" validate:"required,max=256"`
	Product         cartProductPayload    `json:"product"`
	VariantTitle    string                `json:"variant_title" validate:"max=256"`
	Price           moneyPayload          `json:"price"`
	Quantity        int                   `json:"quantity" validate:"required,min=1,max=999"`
	SelectedOptions []selectedOptionInput `json:"selected_options" validate:"omitempty,dive"`
}

type cartProductPayload struct {
	ID       string `json:"id" validate:"required"`
	Handle   string `json:"handle" validate:"required"`
	Title    string `json:"title" validate:"required"`
	ImageURL string `json:"image_url" validate:"omitempty,url"`
}

type moneyPayload struct {
	Amount       string `json:"amount" validate:"required"`
	CurrencyCode string `json:"currency_code" validate:"required,iso4217"`
}

func (m moneyPayload) toMoney() (types.Money, error) {
	money, err := types.ParseMoney(m.Amount, m.CurrencyCode)
	if err != nil {
		return types.Money{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid price")
	}
	if money.Amount.IsNegative() {
		return types.Money{}, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	return money, nil
}

type selectedOptionInput struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

func (r addCartItemRequest) toLineItem() (cart.LineItem, error) {
	price, err := r.Price.toMoney()
	if err != nil {
		return cart.LineItem{}, err
	}
	options := make([]cart.SelectedOption, len(r.SelectedOptions))
	for i, opt := range r.SelectedOptions {
		options[i] = cart.SelectedOption{Name: opt.Name, Value: opt.Value}
	}
	return cart.LineItem{
		VariantID: strings.TrimSpace(r.VariantID),
		Product: cart.ProductRef{
			ID:       r.Product.ID,
			Handle:   r.Product.Handle,
			Title:    validators.SanitizeString(r.Product.Title, 256),
			ImageURL: r.Product.ImageURL,
		},
		VariantTitle:    validators.SanitizeString(r.VariantTitle, 256),
		Price:           price,
		Quantity:        r.Quantity,
		SelectedOptions: options,
	}, nil
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,max=999"`
}

// CartGet returns the tab's cart.
func CartGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, newCartResponse(client.Cart.Snapshot()))
	}
}

// CartAddItem adds a variant, summing the quantity when it is already in the cart.
func CartAddItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := payload.toLineItem()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := client.Cart.AddItem(r.Context(), item)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(updated))
	}
}

// CartUpdateItem sets a line's quantity. Zero or less removes the line.
func CartUpdateItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		variantID := pathParam(r, "variantId")
		responses.WriteSuccess(w, newCartResponse(client.Cart.UpdateQuantity(r.Context(), variantID, *payload.Quantity)))
	}
}

func CartRemoveItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		variantID := pathParam(r, "variantId")
		responses.WriteSuccess(w, newCartResponse(client.Cart.RemoveItem(r.Context(), variantID)))
	}
}

func CartClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, newCartResponse(client.Cart.ClearCart(r.Context())))
	}
}

// CartCheckout opens a hosted checkout for the current items. The cart is
// left intact; the shopper is redirected to the returned URL.
func CartCheckout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := runtimeFor(w, r, logg)
		if !ok {
			return
		}

		checkout, created, err := client.Cart.CreateCheckout(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !created {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkout)
	}
}
