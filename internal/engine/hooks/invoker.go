package hooks

import (
	"fmt"

	"github.com/restforge/restforge/internal/storage"
)

// Invoker runs lifecycle hooks for one entity type. It branches on the
// declared style per hook (bound behavior wins when both are present) but the
// ordering and semantics are identical either way; the instance is always an
// explicit argument internally.
type Invoker struct {
	set      Set
	behavior interface{}
}

// NewInvoker creates an invoker over a config-style set and an optional
// bound-style behavior value
func NewInvoker(set Set, behavior interface{}) *Invoker {
	return &Invoker{set: set, behavior: behavior}
}

// QuerysetRequest applies the visibility hook to a query, returning the
// query unchanged when no hook is declared
func (i *Invoker) QuerysetRequest(ctx *Context, q *storage.Query) (*storage.Query, error) {
	if h, ok := i.behavior.(QuerysetRequester); ok {
		return wrapQuery(h.QuerysetRequest(ctx, q))
	}
	if i.set.QuerysetRequest != nil {
		return wrapQuery(i.set.QuerysetRequest(ctx, q))
	}
	return q, nil
}

func wrapQuery(q *storage.Query, err error) (*storage.Query, error) {
	if err != nil {
		return nil, fmt.Errorf("queryset_request hook failed: %w", err)
	}
	return q, nil
}

// OnCreateBeforeSave runs the on_create_before_save hook
func (i *Invoker) OnCreateBeforeSave(ctx *Context, record storage.Record) error {
	if h, ok := i.behavior.(CreateBeforeSaver); ok {
		return wrap("on_create_before_save", h.OnCreateBeforeSave(ctx, record))
	}
	return wrap("on_create_before_save", call(i.set.OnCreateBeforeSave, ctx, record))
}

// BeforeSave runs the before_save hook
func (i *Invoker) BeforeSave(ctx *Context, record storage.Record) error {
	if h, ok := i.behavior.(BeforeSaver); ok {
		return wrap("before_save", h.BeforeSave(ctx, record))
	}
	return wrap("before_save", call(i.set.BeforeSave, ctx, record))
}

// OnCreateAfterSave runs the on_create_after_save hook
func (i *Invoker) OnCreateAfterSave(ctx *Context, record storage.Record) error {
	if h, ok := i.behavior.(CreateAfterSaver); ok {
		return wrap("on_create_after_save", h.OnCreateAfterSave(ctx, record))
	}
	return wrap("on_create_after_save", call(i.set.OnCreateAfterSave, ctx, record))
}

// AfterSave runs the after_save hook
func (i *Invoker) AfterSave(ctx *Context, record storage.Record) error {
	if h, ok := i.behavior.(AfterSaver); ok {
		return wrap("after_save", h.AfterSave(ctx, record))
	}
	return wrap("after_save", call(i.set.AfterSave, ctx, record))
}

// OnDelete runs the on_delete hook
func (i *Invoker) OnDelete(ctx *Context, record storage.Record) error {
	if h, ok := i.behavior.(Deleter); ok {
		return wrap("on_delete", h.OnDelete(ctx, record))
	}
	return wrap("on_delete", call(i.set.OnDelete, ctx, record))
}

// CustomActions runs the custom_actions hook with the custom values split
// off the validated payload
func (i *Invoker) CustomActions(ctx *Context, customs map[string]interface{}, record storage.Record) error {
	if h, ok := i.behavior.(CustomActor); ok {
		return wrap("custom_actions", h.CustomActions(ctx, customs, record))
	}
	if i.set.CustomActions != nil {
		return wrap("custom_actions", i.set.CustomActions(ctx, customs, record))
	}
	return nil
}

// PostCreate runs the post_create hook
func (i *Invoker) PostCreate(ctx *Context, record storage.Record) error {
	if h, ok := i.behavior.(PostCreator); ok {
		return wrap("post_create", h.PostCreate(ctx, record))
	}
	if i.set.PostCreate != nil {
		return wrap("post_create", i.set.PostCreate(ctx, record))
	}
	return nil
}

func call(fn Func, ctx *Context, record storage.Record) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, record)
}

func wrap(name string, err error) error {
	if err != nil {
		return fmt.Errorf("%s hook failed: %w", name, err)
	}
	return nil
}
