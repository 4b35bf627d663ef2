package context

import "context"

type contextKey string

const (
	requestIDKey  contextKey = "observability_request_id"
	tenantIDKey   contextKey = "observability_tenant_id"
	actorTypeKey  contextKey = "observability_actor_type"
	actorIDKey    contextKey = "observability_actor_id"
	deliveryIDKey contextKey = "observability_delivery_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithTenantID tags the context with the contact whose billing is being processed.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if ctx == nil || tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(tenantIDKey).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	if ctx == nil {
		return ctx
	}
	if actorType != "" {
		ctx = context.WithValue(ctx, actorTypeKey, actorType)
	}
	if actorID != "" {
		ctx = context.WithValue(ctx, actorIDKey, actorID)
	}
	return ctx
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	actorType, _ := ctx.Value(actorTypeKey).(string)
	actorID, _ := ctx.Value(actorIDKey).(string)
	return actorType, actorID
}

// WithDeliveryID tags the context with the id assigned to an inbound webhook delivery.
func WithDeliveryID(ctx context.Context, deliveryID string) context.Context {
	if ctx == nil || deliveryID == "" {
		return ctx
	}
	return context.WithValue(ctx, deliveryIDKey, deliveryID)
}

func DeliveryIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(deliveryIDKey).(string)
	return value
}
