package commerce

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/miravo-storefront/internal/cart"
	"github.com/angelmondragon/miravo-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
)

const productFields = `
  id
  title
  description
  handle
  priceRange { minVariantPrice { amount currencyCode } }
  images(first: 5) { edges { node { url altText } } }
  variants(first: 10) {
    edges {
      node {
        id
        title
        price { amount currencyCode }
        availableForSale
        selectedOptions { name value }
      }
    }
  }
  options { name values }
`

const productsQuery = `
query GetProducts($first: Int!, $query: String) {
  products(first: $first, query: $query) {
    edges { node {` + productFields + `} }
  }
}`

const productByHandleQuery = `
query GetProductByHandle($handle: String!) {
  productByHandle(handle: $handle) {` + productFields + `}
}`

const collectionsQuery = `
query GetCollections($first: Int!) {
  collections(first: $first) {
    edges { node { id title handle description image { url altText } } }
  }
}`

const cartCreateMutation = `
mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart { id checkoutUrl }
    userErrors { field message }
  }
}`

type productNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Handle      string `json:"handle"`
	PriceRange  struct {
		MinVariantPrice moneyV2 `json:"minVariantPrice"`
	} `json:"priceRange"`
	Images   edges[imageNode]   `json:"images"`
	Variants edges[variantNode] `json:"variants"`
	Options  []Option           `json:"options"`
}

type variantNode struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            moneyV2          `json:"price"`
	AvailableForSale bool             `json:"availableForSale"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
}

type collectionNode struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Handle      string     `json:"handle"`
	Description string     `json:"description"`
	Image       *imageNode `json:"image"`
}

func (n productNode) product() (Product, error) {
	minPrice, err := n.PriceRange.MinVariantPrice.money()
	if err != nil {
		return Product{}, fmt.Errorf("product %s price: %w", n.ID, err)
	}
	p := Product{
		ID:              n.ID,
		Handle:          n.Handle,
		Title:           n.Title,
		Description:     n.Description,
		MinVariantPrice: minPrice,
		Options:         n.Options,
	}
	for _, img := range n.Images.nodes() {
		p.Images = append(p.Images, Image{URL: img.URL, AltText: img.AltText})
	}
	for _, v := range n.Variants.nodes() {
		price, err := v.Price.money()
		if err != nil {
			return Product{}, fmt.Errorf("variant %s price: %w", v.ID, err)
		}
		p.Variants = append(p.Variants, Variant{
			ID:               v.ID,
			Title:            v.Title,
			Price:            price,
			AvailableForSale: v.AvailableForSale,
			SelectedOptions:  v.SelectedOptions,
		})
	}
	return p, nil
}

// Storefront is the public catalog and checkout API.
type Storefront struct {
	gql graphQL
}

func NewStorefront(cfg config.ShopifyConfig, client *httpclient.Client) *Storefront {
	header := http.Header{}
	header.Set("X-Shopify-Storefront-Access-Token", cfg.StorefrontToken)
	return &Storefront{gql: graphQL{http: client, endpoint: cfg.StorefrontEndpoint(), header: header}}
}

// FetchProducts lists up to first products, optionally filtered by a
// Shopify search query.
func (s *Storefront) FetchProducts(ctx context.Context, first int, query string) ([]Product, error) {
	vars := map[string]any{"first": clampFirst(first)}
	if strings.TrimSpace(query) != "" {
		vars["query"] = query
	}
	var data struct {
		Products edges[productNode] `json:"products"`
	}
	if err := s.gql.do(ctx, productsQuery, vars, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch products")
	}
	nodes := data.Products.nodes()
	products := make([]Product, 0, len(nodes))
	for _, n := range nodes {
		p, err := n.product()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode products")
		}
		products = append(products, p)
	}
	return products, nil
}

// FetchProductByHandle returns CodeNotFound when the shop has no such product.
func (s *Storefront) FetchProductByHandle(ctx context.Context, handle string) (Product, error) {
	var data struct {
		Product *productNode `json:"productByHandle"`
	}
	if err := s.gql.do(ctx, productByHandleQuery, map[string]any{"handle": handle}, &data); err != nil {
		return Product{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch product")
	}
	if data.Product == nil {
		return Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	p, err := data.Product.product()
	if err != nil {
		return Product{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode product")
	}
	return p, nil
}

func (s *Storefront) FetchCollections(ctx context.Context, first int) ([]Collection, error) {
	var data struct {
		Collections edges[collectionNode] `json:"collections"`
	}
	if err := s.gql.do(ctx, collectionsQuery, map[string]any{"first": clampFirst(first)}, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch collections")
	}
	nodes := data.Collections.nodes()
	collections := make([]Collection, 0, len(nodes))
	for _, n := range nodes {
		c := Collection{ID: n.ID, Handle: n.Handle, Title: n.Title, Description: n.Description}
		if n.Image != nil {
			c.Image = &Image{URL: n.Image.URL, AltText: n.Image.AltText}
		}
		collections = append(collections, c)
	}
	return collections, nil
}

// CreateStorefrontCheckout opens a Shopify cart for the lines and returns
// its id and hosted checkout URL.
func (s *Storefront) CreateStorefrontCheckout(ctx context.Context, items []cart.LineItem) (cart.Checkout, error) {
	lines := make([]map[string]any, 0, len(items))
	for _, item := range items {
		lines = append(lines, map[string]any{
			"quantity":      item.Quantity,
			"merchandiseId": item.VariantID,
		})
	}
	var data struct {
		CartCreate struct {
			Cart *struct {
				ID          string `json:"id"`
				CheckoutURL string `json:"checkoutUrl"`
			} `json:"cart"`
			UserErrors []userError `json:"userErrors"`
		} `json:"cartCreate"`
	}
	vars := map[string]any{"input": map[string]any{"lines": lines}}
	if err := s.gql.do(ctx, cartCreateMutation, vars, &data); err != nil {
		return cart.Checkout{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout")
	}
	if err := firstUserError("cartCreate", data.CartCreate.UserErrors); err != nil {
		return cart.Checkout{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout")
	}
	if data.CartCreate.Cart == nil {
		return cart.Checkout{}, pkgerrors.New(pkgerrors.CodeDependency, "checkout response missing cart")
	}
	return cart.Checkout{CartID: data.CartCreate.Cart.ID, URL: data.CartCreate.Cart.CheckoutURL}, nil
}

// CreateCheckout lets the storefront act as the cart's checkout backend.
func (s *Storefront) CreateCheckout(ctx context.Context, items []cart.LineItem) (cart.Checkout, error) {
	return s.CreateStorefrontCheckout(ctx, items)
}

func clampFirst(first int) int {
	switch {
	case first <= 0:
		return 20
	case first > 250:
		return 250
	default:
		return first
	}
}
