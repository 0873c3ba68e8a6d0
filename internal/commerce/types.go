package commerce

import (
	"github.com/angelmondragon/miravo-storefront/pkg/types"
)

type Image struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            types.Money      `json:"price"`
	AvailableForSale bool             `json:"availableForSale"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
}

type Option struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type Product struct {
	ID              string      `json:"id"`
	Handle          string      `json:"handle"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	MinVariantPrice types.Money `json:"minVariantPrice"`
	Images          []Image     `json:"images"`
	Variants        []Variant   `json:"variants"`
	Options         []Option    `json:"options"`
}

// DefaultVariant is the first listed variant, used by quick-add.
func (p Product) DefaultVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	return p.Variants[0], true
}

type Collection struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       *Image `json:"image,omitempty"`
}

type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// CustomerInput holds the fields sent on create and update. Empty fields are
// left out of the mutation.
type CustomerInput struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

type OrderLine struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type Order struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	CreatedAt         string      `json:"createdAt"`
	FinancialStatus   string      `json:"financialStatus"`
	FulfillmentStatus string      `json:"fulfillmentStatus"`
	Total             types.Money `json:"total"`
	LineItems         []OrderLine `json:"lineItems"`
}
