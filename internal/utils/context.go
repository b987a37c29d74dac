package utils

import "context"

type contextKey string

const (
	CustomerIDKey    contextKey = "customer_id"
	CustomerEmailKey contextKey = "customer_email"
	CustomerRoleKey  contextKey = "customer_role"
)

// SetCustomerContext sets customer identity into context (called by middleware).
func SetCustomerContext(ctx context.Context, id uint, email string, role string) context.Context {
	ctx = context.WithValue(ctx, CustomerIDKey, id)
	ctx = context.WithValue(ctx, CustomerEmailKey, email)
	ctx = context.WithValue(ctx, CustomerRoleKey, role)
	return ctx
}

// GetCustomerIDFromContext retrieves the customer id safely.
// ok is false for guest checkout requests.
func GetCustomerIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(CustomerIDKey).(uint)
	return id, ok
}

func GetCustomerEmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(CustomerEmailKey).(string)
	return email
}

func GetCustomerRoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(CustomerRoleKey).(string)
	return role
}
