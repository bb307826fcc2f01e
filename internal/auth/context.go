package auth

import "context"

// contextKey is a custom type used for context keys to avoid collisions.
type contextKey string

// AccountKey holds the authenticated account id.
const AccountKey contextKey = "account"

// WithAccount returns a context carrying the authenticated account.
func WithAccount(ctx context.Context, account int64) context.Context {
	return context.WithValue(ctx, AccountKey, account)
}

// AccountFromContext retrieves the authenticated account from the request
// context.
func AccountFromContext(ctx context.Context) (int64, bool) {
	account, ok := ctx.Value(AccountKey).(int64)
	return account, ok
}
