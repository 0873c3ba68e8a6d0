package cart

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/miravo-storefront/pkg/types"
)

// Money is the unit price representation shared with the catalog.
type Money = types.Money

// ProductRef is the catalog data a line item carries for display.
type ProductRef struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineItem is one purchasable variant in the cart. VariantID is unique per cart.
type LineItem struct {
	VariantID       string           `json:"variantId"`
	Product         ProductRef       `json:"product"`
	VariantTitle    string           `json:"variantTitle"`
	Price           Money            `json:"price"`
	Quantity        int              `json:"quantity"`
	SelectedOptions []SelectedOption `json:"selectedOptions"`
}

// Cart is an immutable snapshot of the cart state.
type Cart struct {
	Items       []LineItem `json:"items"`
	CartID      string     `json:"cartId,omitempty"`
	CheckoutURL string     `json:"checkoutUrl,omitempty"`
	Loading     bool       `json:"isLoading"`
	SessionID   string     `json:"sessionId"`
}

// TotalQuantity sums the quantity of every line item.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Subtotal sums price times quantity. The currency is taken from the first item.
func (c Cart) Subtotal() Money {
	total := decimal.Zero
	currency := ""
	for i, item := range c.Items {
		if i == 0 {
			currency = item.Price.CurrencyCode
		}
		total = total.Add(item.Price.Times(item.Quantity).Amount)
	}
	return Money{Amount: total, CurrencyCode: currency}
}

// Find returns the line item for variantID.
func (c Cart) Find(variantID string) (LineItem, bool) {
	for _, item := range c.Items {
		if item.VariantID == variantID {
			return item, true
		}
	}
	return LineItem{}, false
}

func (c Cart) clone() Cart {
	out := c
	out.Items = cloneItems(c.Items)
	return out
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.SelectedOptions != nil {
			out[i].SelectedOptions = append([]SelectedOption(nil), item.SelectedOptions...)
		}
	}
	return out
}
