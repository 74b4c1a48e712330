// Package orchestrator sequences full CRUD lifecycles over the abstract
// persistence layer: visibility scoping, eager-load plans, input/output
// normalization, and lifecycle hooks in their fixed order.
package orchestrator

import (
	"errors"

	"go.uber.org/zap"

	"github.com/restforge/restforge/internal/engine/contract"
	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/hooks"
	"github.com/restforge/restforge/internal/engine/scopes"
	"github.com/restforge/restforge/internal/storage"
)

// ErrNotFound is returned when a single-record fetch matches zero rows
var ErrNotFound = storage.ErrNotFound

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Orchestrator drives create/read/update/delete lifecycles for registered
// entity types. Configuration errors from contract generation pass through
// untouched: they are programming errors, not request outcomes.
type Orchestrator struct {
	store     storage.Store
	registry  *descriptor.Registry
	generator *contract.Generator
	logger    *zap.Logger
}

// New creates an orchestrator. A nil logger disables logging.
func New(store storage.Store, registry *descriptor.Registry, generator *contract.Generator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     store,
		registry:  registry,
		generator: generator,
		logger:    logger,
	}
}

// Store returns the persistence layer
func (o *Orchestrator) Store() storage.Store { return o.store }

// Generator returns the contract generator
func (o *Orchestrator) Generator() *contract.Generator { return o.generator }

// Contract generates the contract for an entity operation
func (o *Orchestrator) Contract(d *descriptor.EntityDescriptor, op descriptor.Operation) (*contract.Contract, error) {
	return o.generator.Generate(d, op)
}

// scopedQuery builds the base query for an entity: the queryset_request hook
// scopes visibility first, then the requested eager-load scope is merged.
// Read-class scopes union in the relation names discovered from the
// operation's contract so contract relations are always eager-loaded.
func (o *Orchestrator) scopedQuery(rctx *hooks.Context, d *descriptor.EntityDescriptor, scopeName string) (*storage.Query, error) {
	q := storage.NewQuery(d.Storage.Name)

	invoker := hooks.NewInvoker(d.Hooks, d.Behavior)
	q, err := invoker.QuerysetRequest(rctx, q)
	if err != nil {
		return nil, err
	}

	if scopeName == "" {
		return q, nil
	}

	opts := scopes.ApplyOptions{}
	if scopeName == scopes.ScopeRead || scopeName == scopes.ScopeDetail {
		op := descriptor.OpRead
		if scopeName == scopes.ScopeDetail {
			op = descriptor.OpDetail
		}
		c, err := o.generator.Generate(d, op)
		if err != nil {
			return nil, err
		}
		opts.ForRead = true
		opts.ContractRelations = c.Relations()
	}

	return d.Scopes.Apply(q, scopeName, opts), nil
}

// FetchOne retrieves a single record by primary key, applying visibility
// scoping and the named eager-load scope. Returns ErrNotFound on zero rows.
func (o *Orchestrator) FetchOne(rctx *hooks.Context, d *descriptor.EntityDescriptor, pk interface{}, scopeName string) (storage.Record, error) {
	pkField, err := d.Storage.PrimaryKey()
	if err != nil {
		return nil, descriptor.NewConfigError(d.Name, "", "%v", err)
	}
	return o.FetchOneBy(rctx, d, map[string]interface{}{pkField.Name: pk}, scopeName)
}

// FetchOneBy retrieves a single record by an arbitrary lookup predicate
func (o *Orchestrator) FetchOneBy(rctx *hooks.Context, d *descriptor.EntityDescriptor, lookup map[string]interface{}, scopeName string) (storage.Record, error) {
	q, err := o.scopedQuery(rctx, d, scopeName)
	if err != nil {
		return nil, err
	}
	for field, value := range lookup {
		q = q.Where(field, value)
	}

	rec, err := o.store.Get(rctx, q)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FetchMany returns an unconsumed lazy query for the entity; the caller (a
// pagination collaborator, typically) decides how much to materialize.
func (o *Orchestrator) FetchMany(rctx *hooks.Context, d *descriptor.EntityDescriptor, filter map[string]interface{}, scopeName string) (*storage.Query, error) {
	q, err := o.scopedQuery(rctx, d, scopeName)
	if err != nil {
		return nil, err
	}
	for field, value := range filter {
		q = q.Where(field, value)
	}
	return q, nil
}

// Create persists a validated payload through the full create lifecycle and
// serializes the result with the given output contract
func (o *Orchestrator) Create(rctx *hooks.Context, d *descriptor.EntityDescriptor, validated storage.Record, output *contract.Contract) (map[string]interface{}, error) {
	fields, customs, err := o.NormalizeInput(rctx, d, descriptor.OpCreate, validated)
	if err != nil {
		return nil, err
	}

	related := extractRelated(d, fields)
	invoker := hooks.NewInvoker(d.Hooks, d.Behavior)

	if err := invoker.OnCreateBeforeSave(rctx, fields); err != nil {
		return nil, err
	}
	if err := invoker.BeforeSave(rctx, fields); err != nil {
		return nil, err
	}

	rec, err := o.store.Insert(rctx, d.Storage.Name, o.flattenRelations(d, fields))
	if err != nil {
		return nil, err
	}

	if err := invoker.OnCreateAfterSave(rctx, rec); err != nil {
		return nil, err
	}
	if err := invoker.AfterSave(rctx, rec); err != nil {
		return nil, err
	}
	if err := invoker.CustomActions(rctx, customs, rec); err != nil {
		return nil, err
	}
	if err := invoker.PostCreate(rctx, rec); err != nil {
		return nil, err
	}

	o.logger.Debug("created record",
		zap.String("entity", d.Qualified()),
		zap.Any("pk", rec[output.PrimaryKey]))

	return o.dump(rctx, d, rec, related, output)
}

// Update applies a validated payload to an existing record through the
// update lifecycle
func (o *Orchestrator) Update(rctx *hooks.Context, d *descriptor.EntityDescriptor, pk interface{}, validated storage.Record, output *contract.Contract) (map[string]interface{}, error) {
	existing, err := o.FetchOne(rctx, d, pk, "")
	if err != nil {
		return nil, err
	}

	fields, customs, err := o.NormalizeInput(rctx, d, descriptor.OpUpdate, validated)
	if err != nil {
		return nil, err
	}

	related := extractRelated(d, fields)

	// Assign the new values onto the fetched record so before_save observes,
	// and can reshape, the full post-assignment state.
	merged := existing.Clone()
	merged.Merge(o.flattenRelations(d, fields))

	invoker := hooks.NewInvoker(d.Hooks, d.Behavior)
	if err := invoker.BeforeSave(rctx, merged); err != nil {
		return nil, err
	}

	// Persist everything that differs from the fetched row, hook mutations
	// included.
	assignments := changedValues(existing, o.flattenRelations(d, merged))

	rec, err := o.store.Update(rctx, d.Storage.Name, pk, assignments)
	if err != nil {
		return nil, err
	}

	if err := invoker.AfterSave(rctx, rec); err != nil {
		return nil, err
	}
	if err := invoker.CustomActions(rctx, customs, rec); err != nil {
		return nil, err
	}

	o.logger.Debug("updated record",
		zap.String("entity", d.Qualified()),
		zap.Any("pk", pk))

	return o.dump(rctx, d, rec, related, output)
}

// Serialize renders a stored record through the entity's contract for the
// given operation
func (o *Orchestrator) Serialize(rctx *hooks.Context, d *descriptor.EntityDescriptor, op descriptor.Operation, rec storage.Record) (map[string]interface{}, error) {
	c, err := o.Contract(d, op)
	if err != nil {
		return nil, err
	}
	return o.dump(rctx, d, rec, nil, c)
}

// Delete removes a record and runs the on_delete hook
func (o *Orchestrator) Delete(rctx *hooks.Context, d *descriptor.EntityDescriptor, pk interface{}) error {
	existing, err := o.FetchOne(rctx, d, pk, "")
	if err != nil {
		return err
	}

	if err := o.store.Delete(rctx, d.Storage.Name, pk); err != nil {
		return err
	}

	invoker := hooks.NewInvoker(d.Hooks, d.Behavior)
	if err := invoker.OnDelete(rctx, existing); err != nil {
		return err
	}

	o.logger.Debug("deleted record",
		zap.String("entity", d.Qualified()),
		zap.Any("pk", pk))

	return nil
}

// dump reattaches related entities resolved during input normalization (no
// extra storage round-trip), serializes through the output contract, and
// normalizes the output mapping
func (o *Orchestrator) dump(rctx *hooks.Context, d *descriptor.EntityDescriptor, rec storage.Record, related map[string]interface{}, output *contract.Contract) (map[string]interface{}, error) {
	instance := rec.Clone()
	for name, value := range related {
		instance[name] = value
	}

	dumped, err := output.Dump(instance)
	if err != nil {
		return nil, err
	}

	return o.NormalizeOutput(rctx, d, dumped), nil
}
