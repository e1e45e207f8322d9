package middleware

import "context"

const ownerHolderKey contextKey = "ownerHolder"

type ownerHolder struct {
	owner string
}

func withOwnerHolder(ctx context.Context, h *ownerHolder) context.Context {
	return context.WithValue(ctx, ownerHolderKey, h)
}

func ownerHolderFromContext(ctx context.Context) *ownerHolder {
	h, _ := ctx.Value(ownerHolderKey).(*ownerHolder)
	return h
}
