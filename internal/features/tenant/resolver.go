// Package tenant resolves who is calling and which organization every query is scoped to.
package tenant

import (
	"context"

	"go-reports/internal/common/errs"
	common_models "go-reports/internal/common/models"
	"go-reports/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// Caller identifies the user on whose behalf an operation runs.
type Caller struct {
	UserID         string
	OrganizationID string
}

// Resolver answers currentOrganizationId(caller) for an incoming request.
type Resolver interface {
	Resolve(c *fiber.Ctx) (Caller, error)
}

type ClaimsResolver struct{}

func NewClaimsResolver() Resolver {
	return &ClaimsResolver{}
}

// Resolve reads the claims placed by the auth middleware. A token without an
// organization cannot see any tenant data.
func (r *ClaimsResolver) Resolve(c *fiber.Ctx) (Caller, error) {
	claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
	if !ok || claims.UserID == "" || claims.OrganizationID == "" {
		return Caller{}, errs.ErrAccessDenied
	}
	return Caller{UserID: claims.UserID, OrganizationID: claims.OrganizationID}, nil
}

// WithCaller stores the caller on ctx for audit logging.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, common_models.CallerKey, caller)
}

// FromContext returns the caller stored by WithCaller.
func FromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(common_models.CallerKey).(Caller)
	return caller, ok
}

// Bind resolves the caller and returns the request context carrying it.
func Bind(c *fiber.Ctx, r Resolver) (context.Context, Caller, error) {
	caller, err := r.Resolve(c)
	if err != nil {
		return nil, Caller{}, err
	}
	return WithCaller(c.UserContext(), caller), caller, nil
}
