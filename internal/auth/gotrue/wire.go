package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/angelmondragon/miravo-storefront/internal/auth"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/httpclient"
)

// signUpResponse is either a session (autoconfirm) or a bare user.
type signUpResponse struct {
	auth.Session
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (r signUpResponse) user() auth.User {
	return auth.User{ID: r.ID, Email: r.Email, UserMetadata: r.UserMetadata, CreatedAt: r.CreatedAt}
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
}

func (b errorBody) message() string {
	for _, candidate := range []string{b.ErrorDescription, b.Msg, b.Message, b.Error} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// call sends an authenticated GoTrue request. bearer defaults to the anon key.
// 4xx answers become *auth.Error; transport and 5xx failures are dependency errors.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, bearer string, in, out any) error {
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	header := http.Header{}
	header.Set("apikey", c.anonKey)
	header.Set("Authorization", "Bearer "+bearer)

	err := c.http.JSON(ctx, method, endpoint, header, in, out)
	if err == nil {
		return nil
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.IsClientError() {
		var body errorBody
		_ = json.Unmarshal(statusErr.Body, &body)
		msg := body.message()
		if msg == "" {
			msg = http.StatusText(statusErr.Status)
		}
		return &auth.Error{Status: statusErr.Status, Code: body.ErrorCode, Message: msg}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "auth provider unavailable")
}
