package http

import (
	"context"

	"wikiloult/app/internal/domain/identity"
)

type contextKey string

const (
	requestIDContextKey contextKey = "wikiloult/request-id"
	personaContextKey   contextKey = "wikiloult/persona"
	clientIPContextKey  contextKey = "wikiloult/client-ip"
)

// RequestIDFromContext extracts the request identifier from the context when available.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDContextKey).(string); ok {
		return value
	}
	return ""
}

func clientIPFromContext(ctx context.Context) string {
	if value, ok := ctx.Value(clientIPContextKey).(string); ok {
		return value
	}
	return ""
}

// PersonaFromContext returns the persona resolved from the visitor cookie.
// The boolean is false for visitors without a cookie.
func PersonaFromContext(ctx context.Context) (identity.Persona, bool) {
	if ctx == nil {
		return identity.Persona{}, false
	}
	persona, ok := ctx.Value(personaContextKey).(identity.Persona)
	return persona, ok
}

func withPersona(ctx context.Context, persona identity.Persona) context.Context {
	return context.WithValue(ctx, personaContextKey, persona)
}
