package commerce

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/miravo-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
)

const findCustomerQuery = `
query findCustomer($query: String!) {
  customers(first: 1, query: $query) {
    edges { node { id email firstName lastName createdAt phone } }
  }
}`

const customerCreateMutation = `
mutation customerCreate($input: CustomerInput!) {
  customerCreate(input: $input) {
    customer { id email firstName lastName createdAt }
    userErrors { field message }
  }
}`

const customerUpdateMutation = `
mutation customerUpdate($input: CustomerInput!) {
  customerUpdate(input: $input) {
    customer { id email firstName lastName }
    userErrors { field message }
  }
}`

const customerOrdersQuery = `
query getCustomerOrders($customerId: ID!) {
  customer(id: $customerId) {
    orders(first: 20, sortKey: CREATED_AT, reverse: true) {
      edges {
        node {
          id
          name
          createdAt
          displayFinancialStatus
          displayFulfillmentStatus
          totalPriceSet { shopMoney { amount currencyCode } }
          lineItems(first: 10) { edges { node { title quantity image { url } } } }
        }
      }
    }
  }
}`

type orderNode struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	CreatedAt                string `json:"createdAt"`
	DisplayFinancialStatus   string `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string `json:"displayFulfillmentStatus"`
	TotalPriceSet            struct {
		ShopMoney moneyV2 `json:"shopMoney"`
	} `json:"totalPriceSet"`
	LineItems edges[orderLineNode] `json:"lineItems"`
}

type orderLineNode struct {
	Title    string     `json:"title"`
	Quantity int        `json:"quantity"`
	Image    *imageNode `json:"image"`
}

// Admin manages shop customers. It requires the Admin API token.
type Admin struct {
	gql graphQL
}

func NewAdmin(cfg config.ShopifyConfig, client *httpclient.Client) *Admin {
	header := http.Header{}
	header.Set("X-Shopify-Access-Token", cfg.AdminToken)
	return &Admin{gql: graphQL{http: client, endpoint: cfg.AdminEndpoint(), header: header}}
}

// FindCustomerByEmail returns ok=false when no customer has the email.
func (a *Admin) FindCustomerByEmail(ctx context.Context, email string) (Customer, bool, error) {
	var data struct {
		Customers edges[Customer] `json:"customers"`
	}
	if err := a.gql.do(ctx, findCustomerQuery, map[string]any{"query": "email:" + email}, &data); err != nil {
		return Customer{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find customer")
	}
	nodes := data.Customers.nodes()
	if len(nodes) == 0 {
		return Customer{}, false, nil
	}
	return nodes[0], true, nil
}

func (a *Admin) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	var data struct {
		Result struct {
			Customer   *Customer   `json:"customer"`
			UserErrors []userError `json:"userErrors"`
		} `json:"customerCreate"`
	}
	vars := map[string]any{"input": customerInputVars("", in)}
	if err := a.gql.do(ctx, customerCreateMutation, vars, &data); err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}
	if err := firstUserError("customerCreate", data.Result.UserErrors); err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}
	if data.Result.Customer == nil {
		return Customer{}, pkgerrors.New(pkgerrors.CodeDependency, "customer create returned no customer")
	}
	return *data.Result.Customer, nil
}

func (a *Admin) UpdateCustomer(ctx context.Context, customerID string, in CustomerInput) (Customer, error) {
	var data struct {
		Result struct {
			Customer   *Customer   `json:"customer"`
			UserErrors []userError `json:"userErrors"`
		} `json:"customerUpdate"`
	}
	vars := map[string]any{"input": customerInputVars(customerID, in)}
	if err := a.gql.do(ctx, customerUpdateMutation, vars, &data); err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer")
	}
	if err := firstUserError("customerUpdate", data.Result.UserErrors); err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer")
	}
	if data.Result.Customer == nil {
		return Customer{}, pkgerrors.New(pkgerrors.CodeDependency, "customer update returned no customer")
	}
	return *data.Result.Customer, nil
}

// CustomerOrders lists the customer's 20 most recent orders, newest first.
func (a *Admin) CustomerOrders(ctx context.Context, customerID string) ([]Order, error) {
	var data struct {
		Customer *struct {
			Orders edges[orderNode] `json:"orders"`
		} `json:"customer"`
	}
	if err := a.gql.do(ctx, customerOrdersQuery, map[string]any{"customerId": customerID}, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch customer orders")
	}
	orders := []Order{}
	if data.Customer == nil {
		return orders, nil
	}
	for _, n := range data.Customer.Orders.nodes() {
		total, err := n.TotalPriceSet.ShopMoney.money()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode order total")
		}
		order := Order{
			ID:                n.ID,
			Name:              n.Name,
			CreatedAt:         n.CreatedAt,
			FinancialStatus:   n.DisplayFinancialStatus,
			FulfillmentStatus: n.DisplayFulfillmentStatus,
			Total:             total,
			LineItems:         []OrderLine{},
		}
		for _, line := range n.LineItems.nodes() {
			ol := OrderLine{Title: line.Title, Quantity: line.Quantity}
			if line.Image != nil {
				ol.ImageURL = line.Image.URL
			}
			order.LineItems = append(order.LineItems, ol)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func customerInputVars(id string, in CustomerInput) map[string]any {
	vars := map[string]any{}
	if id != "" {
		vars["id"] = id
	}
	if in.Email != "" {
		vars["email"] = in.Email
	}
	if in.FirstName != "" {
		vars["firstName"] = in.FirstName
	}
	if in.LastName != "" {
		vars["lastName"] = in.LastName
	}
	if in.Phone != "" {
		vars["phone"] = in.Phone
	}
	return vars
}

// SplitName splits a full name at the first space into first and last names.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
