package clog

import (
	"context"
	"sync"
)

type ctxSlog struct {
	mu         sync.RWMutex
	attributes map[string]any
}

type ctxSlogKey struct{}

// ContextWithSlog attaches a mutable attribute bag to ctx. Attributes added
// later in the same invocation show up on every record logged with the
// context.
func ContextWithSlog(ctx context.Context) context.Context {
	ctxSlog := &ctxSlog{
		attributes: make(map[string]any),
	}
	return context.WithValue(ctx, ctxSlogKey{}, ctxSlog)
}

// AddAttribute records a key/value pair on the context's bag. A context
// without a bag silently drops the attribute.
func AddAttribute(ctx context.Context, key string, value any) {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attributes[key] = value
}

const ErrorAttributeKey = "error.message"

// AddError records err under ErrorAttributeKey, which TextHandler renders
// on its own trailing line.
func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func (c *ctxSlog) getAttributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	copied := make(map[string]any, len(c.attributes))
	for k, v := range c.attributes {
		copied[k] = v
	}
	return copied
}

func GetAttributes(ctx context.Context) map[string]any {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return nil
	}
	return l.getAttributes()
}
