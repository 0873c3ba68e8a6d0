package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/miravo-storefront/api/responses"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

// maxPeekBytes bounds how much of a body is read to find the email.
const maxPeekBytes = 64 << 10

const rateLimitedMessage = "Too many attempts. Please wait a moment and try again."

// RateCounter counts hits per scope in fixed windows. *redis.Client
// implements it.
type RateCounter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy throttles one storefront surface along three dimensions.
// A zero limit disables that dimension.
type RateLimitPolicy struct {
	Name      string
	Window    time.Duration
	PerIP     int
	PerEmail  int
	PerDevice int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0 || p.PerDevice > 0)
}

type dimension struct {
	name  string
	value string
	limit int
}

// RateLimit enforces the policy before next runs. The email is peeked from
// the JSON body, which is restored for the handler. When the counter fails
// the request is let through and the failure is logged.
func RateLimit(policy RateLimitPolicy, counter RateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	name := strings.ToLower(strings.TrimSpace(policy.Name))
	if name == "" {
		name = "auth"
	}
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			dims := []dimension{
				{name: "ip", value: clientIP(r), limit: policy.PerIP},
				{name: "device", value: strings.TrimSpace(r.Header.Get(DeviceIDHeader)), limit: policy.PerDevice},
			}
			if policy.PerEmail > 0 {
				email, err := peekEmail(r)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
					return
				}
				if email != "" {
					dims = append(dims, dimension{name: "email", value: hashValue(email), limit: policy.PerEmail})
				}
			}

			for _, dim := range dims {
				if dim.limit <= 0 || dim.value == "" {
					continue
				}
				scope := fmt.Sprintf("%s:%s:%s", dim.name, name, dim.value)
				allowed, count, err := counter.FixedWindowAllow(ctx, scope, int64(dim.limit), policy.Window)
				if err != nil {
					logg.Error(logg.WithField(ctx, "policy", name), "rate_limit.unavailable", err)
					break
				}
				if !allowed {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   name,
						"scope":    dim.name,
						"attempts": count,
						"limit":    dim.limit,
					}), "rate_limit.blocked")
					w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, rateLimitedMessage))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peekEmail reads the lower-cased "email" field and rewinds the body.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))

	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(payload.Email)), nil
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		first, _, _ := strings.Cut(header, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
