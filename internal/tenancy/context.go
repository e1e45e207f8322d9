package tenancy

import "context"

type ctxKey string

const ownerKey ctxKey = "practice.owner_uid"

// WithOwnerUID stores the authenticated practitioner's uid in context.
func WithOwnerUID(ctx context.Context, ownerUID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerUID)
}

// OwnerUIDFromContext extracts the owner uid if present.
func OwnerUIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(ownerKey)
	if val == nil {
		return "", false
	}
	ownerUID, ok := val.(string)
	return ownerUID, ok && ownerUID != ""
}
