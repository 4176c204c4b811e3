package auth

import (
	"context"

	"roomchat/internal/models"
)

type contextKey struct{}

func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

func IdentityFrom(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(*models.Identity)
	return identity, ok && identity != nil
}
