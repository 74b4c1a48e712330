// Package hooks defines the optional lifecycle hook set an entity type may
// declare and the invoker that runs hooks in their fixed order. Hooks come in
// two declaration styles with identical semantics: a config style of plain
// functions receiving the instance as an explicit argument, and a bound style
// where a behavior value implements optional interfaces. A missing hook is a
// no-op, never an error.
package hooks

import (
	"context"

	"github.com/restforge/restforge/internal/storage"
)

// Func is a synchronous lifecycle hook. Synchronous hooks must not perform
// blocking I/O; the context is carried for cancellation only.
type Func func(ctx *Context, record storage.Record) error

// Set is the config-style lifecycle hook set. Every entry is optional.
type Set struct {
	// QuerysetRequest scopes record visibility before any fetch; it may
	// perform I/O.
	QuerysetRequest func(ctx *Context, q *storage.Query) (*storage.Query, error)

	// Synchronous hooks around persistence
	OnCreateBeforeSave Func
	BeforeSave         Func
	OnCreateAfterSave  Func
	AfterSave          Func
	OnDelete           Func

	// CustomActions consumes the custom values split off the validated
	// payload after the record persists; it may perform I/O.
	CustomActions func(ctx *Context, customs map[string]interface{}, record storage.Record) error

	// PostCreate runs after create-side hooks complete; it may perform I/O.
	PostCreate func(ctx *Context, record storage.Record) error
}

// Bound-style hook interfaces, discovered on a descriptor's behavior value.
// Method sets mirror the config-style signatures with the instance still
// explicit, so one internal invocation path serves both styles.

// QuerysetRequester scopes record visibility before fetches
type QuerysetRequester interface {
	QuerysetRequest(ctx *Context, q *storage.Query) (*storage.Query, error)
}

// CreateBeforeSaver runs before before_save on create only
type CreateBeforeSaver interface {
	OnCreateBeforeSave(ctx *Context, record storage.Record) error
}

// BeforeSaver runs before every persist
type BeforeSaver interface {
	BeforeSave(ctx *Context, record storage.Record) error
}

// CreateAfterSaver runs after persist on create only
type CreateAfterSaver interface {
	OnCreateAfterSave(ctx *Context, record storage.Record) error
}

// AfterSaver runs after every persist
type AfterSaver interface {
	AfterSave(ctx *Context, record storage.Record) error
}

// Deleter runs after a record is deleted
type Deleter interface {
	OnDelete(ctx *Context, record storage.Record) error
}

// CustomActor consumes custom values after persistence
type CustomActor interface {
	CustomActions(ctx *Context, customs map[string]interface{}, record storage.Record) error
}

// PostCreator runs last in the create sequence
type PostCreator interface {
	PostCreate(ctx *Context, record storage.Record) error
}

// Context is the request-scoped ambient object hooks receive. It embeds the
// request context and carries the opaque actor supplied by the
// authentication collaborator plus the store for suspending hooks.
type Context struct {
	context.Context

	actor  interface{}
	store  storage.Store
	entity string
}

// NewContext creates a hook context for one orchestrated operation
func NewContext(ctx context.Context, actor interface{}, store storage.Store, entity string) *Context {
	return &Context{
		Context: ctx,
		actor:   actor,
		store:   store,
		entity:  entity,
	}
}

// Actor returns the opaque request actor (may be nil)
func (c *Context) Actor() interface{} { return c.actor }

// Store returns the persistence layer
func (c *Context) Store() storage.Store { return c.store }

// Entity returns the qualified entity name the operation targets
func (c *Context) Entity() string { return c.entity }
