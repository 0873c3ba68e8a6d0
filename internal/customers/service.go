// Package customers links storefront accounts to commerce customers.
package customers

import (
	"context"
	"strings"

	"github.com/angelmondragon/miravo-storefront/internal/commerce"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionGetOrders Action = "get_orders"
)

// SkippedMessage is returned when no Admin API token is configured.
const SkippedMessage = "Shopify sync skipped - not configured"

// Backend is the commerce customer API.
type Backend interface {
	FindCustomerByEmail(ctx context.Context, email string) (commerce.Customer, bool, error)
	CreateCustomer(ctx context.Context, in commerce.CustomerInput) (commerce.Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, in commerce.CustomerInput) (commerce.Customer, error)
	CustomerOrders(ctx context.Context, customerID string) ([]commerce.Order, error)
}

// ProfileLinker records the customer id on the user's profile.
type ProfileLinker interface {
	SetShopifyCustomerID(ctx context.Context, userID, customerID string) error
}

type Request struct {
	Action            Action   `json:"action" validate:"required"`
	Email             string   `json:"email,omitempty" validate:"omitempty,email"`
	Name              string   `json:"name,omitempty"`
	SupabaseUserID    string   `json:"supabase_user_id,omitempty"`
	ShopifyCustomerID string   `json:"shopify_customer_id,omitempty"`
	Phone             string   `json:"phone,omitempty"`
	Address           *Address `json:"address,omitempty"`
}

// Address is accepted for parity with the account form; the Admin customer
// update does not carry it.
type Address struct {
	Address1 string `json:"address1,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	Country  string `json:"country,omitempty"`
	Zip      string `json:"zip,omitempty"`
}

type Response struct {
	Success           bool               `json:"success"`
	Message           string             `json:"message,omitempty"`
	ShopifyCustomerID string             `json:"shopify_customer_id,omitempty"`
	CreatedAt         string             `json:"created_at,omitempty"`
	Customer          *commerce.Customer `json:"customer,omitempty"`
	// Orders is set only for get_orders, where an unknown customer yields [].
	Orders *[]commerce.Order `json:"orders,omitempty"`
}

type Service struct {
	backend Backend
	linker  ProfileLinker
	logg    *logger.Logger
}

// NewService returns a service that skips every action when backend is nil.
func NewService(backend Backend, linker ProfileLinker, logg *logger.Logger) *Service {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{backend: backend, linker: linker, logg: logg}
}

// Configured reports whether an Admin API backend is wired.
func (s *Service) Configured() bool {
	return s.backend != nil
}

func (s *Service) Sync(ctx context.Context, req Request) (Response, error) {
	if !s.Configured() {
		s.logg.Warn(ctx, "customers.sync.skipped")
		return Response{Success: true, Message: SkippedMessage}, nil
	}
	switch req.Action {
	case ActionCreate:
		return s.create(ctx, req)
	case ActionUpdate:
		return s.update(ctx, req)
	case ActionGetOrders:
		return s.orders(ctx, req)
	default:
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "Invalid action")
	}
}

func (s *Service) create(ctx context.Context, req Request) (Response, error) {
	if req.Email == "" || req.Name == "" || req.SupabaseUserID == "" {
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "Missing required fields: email, name, supabase_user_id")
	}
	customer, found, err := s.backend.FindCustomerByEmail(ctx, req.Email)
	if err != nil {
		return Response{}, err
	}
	if !found {
		first, last := commerce.SplitName(req.Name)
		customer, err = s.backend.CreateCustomer(ctx, commerce.CustomerInput{Email: req.Email, FirstName: first, LastName: last})
		if err != nil {
			return Response{}, err
		}
	}
	if s.linker != nil {
		if err := s.linker.SetShopifyCustomerID(ctx, req.SupabaseUserID, customer.ID); err != nil {
			s.logg.Error(s.logg.WithUserID(ctx, req.SupabaseUserID), "customers.link.failed", err)
		}
	}
	return Response{Success: true, ShopifyCustomerID: customer.ID, CreatedAt: customer.CreatedAt}, nil
}

func (s *Service) update(ctx context.Context, req Request) (Response, error) {
	if req.ShopifyCustomerID == "" {
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "Missing shopify_customer_id")
	}
	first, last := commerce.SplitName(req.Name)
	customer, err := s.backend.UpdateCustomer(ctx, req.ShopifyCustomerID, commerce.CustomerInput{
		FirstName: first,
		LastName:  last,
		Phone:     strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Customer: &customer}, nil
}

func (s *Service) orders(ctx context.Context, req Request) (Response, error) {
	if req.ShopifyCustomerID == "" && req.Email == "" {
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "Missing shopify_customer_id or email")
	}
	customerID := req.ShopifyCustomerID
	if customerID == "" {
		customer, found, err := s.backend.FindCustomerByEmail(ctx, req.Email)
		if err != nil {
			return Response{}, err
		}
		if found {
			customerID = customer.ID
		}
	}
	if customerID == "" {
		return Response{Success: true, Orders: &[]commerce.Order{}}, nil
	}
	orders, err := s.backend.CustomerOrders(ctx, customerID)
	if err != nil {
		return Response{}, err
	}
	if orders == nil {
		orders = []commerce.Order{}
	}
	return Response{Success: true, Orders: &orders}, nil
}

// CreateCustomer runs the create action for a new account.
func (s *Service) CreateCustomer(ctx context.Context, userID, email, fullName string) error {
	_, err := s.Sync(ctx, Request{Action: ActionCreate, Email: email, Name: fullName, SupabaseUserID: userID})
	return err
}

// UpdateCustomerName runs the update action after a profile rename.
func (s *Service) UpdateCustomerName(ctx context.Context, customerID, fullName string) error {
	_, err := s.Sync(ctx, Request{Action: ActionUpdate, ShopifyCustomerID: customerID, Name: fullName})
	return err
}

// Orders returns the order history for an account, preferring the linked
// customer id and falling back to an email lookup.
func (s *Service) Orders(ctx context.Context, customerID, email string) ([]commerce.Order, error) {
	resp, err := s.Sync(ctx, Request{Action: ActionGetOrders, ShopifyCustomerID: customerID, Email: email})
	if err != nil {
		return nil, err
	}
	if resp.Orders == nil {
		return []commerce.Order{}, nil
	}
	return *resp.Orders, nil
}
