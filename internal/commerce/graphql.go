// Package commerce talks to the Shopify Storefront and Admin GraphQL APIs.
package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
	"github.com/angelmondragon/miravo-storefront/pkg/types"
)

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQLError carries the first error reported by a GraphQL endpoint.
type GraphQLError struct {
	Message string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + e.Message
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// UserError is a mutation rejection reported in a userErrors payload.
type UserError struct {
	Operation string
	Field     string
	Message   string
}

func (e *UserError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Operation, e.Field, e.Message)
}

func firstUserError(op string, errs []userError) error {
	if len(errs) == 0 {
		return nil
	}
	return &UserError{Operation: op, Field: strings.Join(errs[0].Field, "."), Message: errs[0].Message}
}

type graphQL struct {
	http     *httpclient.Client
	endpoint string
	header   http.Header
}

func (g graphQL) do(ctx context.Context, query string, vars map[string]any, out any) error {
	var resp graphQLResponse
	if err := g.http.JSON(ctx, http.MethodPost, g.endpoint, g.header, graphQLRequest{Query: query, Variables: vars}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return &GraphQLError{Message: resp.Errors[0].Message}
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

type moneyV2 struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

func (m moneyV2) money() (types.Money, error) {
	return types.ParseMoney(m.Amount, m.CurrencyCode)
}

type imageNode struct {
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

type edges[T any] struct {
	Edges []struct {
		Node T `json:"node"`
	} `json:"edges"`
}

func (e edges[T]) nodes() []T {
	out := make([]T, 0, len(e.Edges))
	for _, edge := range e.Edges {
		out = append(out, edge.Node)
	}
	return out
}
