package contract

import (
	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/validation"
)

// injectBehavior installs an operation config's constraint functions and
// method overrides onto a fresh copy of the base contract. The base is never
// mutated: it may be shared through the resolver's memoization, and two
// operations of the same entity must not see each other's rules.
//
// Overrides authored on a config holder have no contract to resolve a parent
// implementation against, so the parent is bound here instead: the super
// continuation each override receives is the synthesized copy's own base
// implementation, captured at install time.
func injectBehavior(base *Contract, d *descriptor.EntityDescriptor, cfg *descriptor.OperationConfig) (*Contract, error) {
	c := base.clone()

	for name, rules := range cfg.FieldRules {
		f := c.fieldIndex[name]
		if f == nil {
			return nil, descriptor.NewConfigError(d.Name, name, "constraint declared for field not in %s contract", base.Operation)
		}
		f.Rules = append(f.Rules, rules...)
	}

	c.recordRules = append(c.recordRules, cfg.RecordRules...)

	c.dumpOverride = cfg.Overrides.Dump
	c.buildOverride = cfg.Overrides.Build

	return c, nil
}

// clone copies the contract and its fields deeply enough that rules and
// overrides installed on the copy never leak back into the receiver
func (c *Contract) clone() *Contract {
	out := &Contract{
		Name:       c.Name,
		Entity:     c.Entity,
		Operation:  c.Operation,
		PrimaryKey: c.PrimaryKey,
		Fields:     make([]*Field, 0, len(c.Fields)),
		fieldIndex: make(map[string]*Field, len(c.Fields)),
	}

	for _, f := range c.Fields {
		copied := *f
		if f.Relation != nil {
			rel := *f.Relation
			copied.Relation = &rel
		}
		copied.Rules = append([]validation.FieldRule(nil), f.Rules...)
		out.Fields = append(out.Fields, &copied)
		out.fieldIndex[copied.Name] = &copied
	}

	out.recordRules = append([]validation.RecordRule(nil), c.recordRules...)
	out.dumpOverride = c.dumpOverride
	out.buildOverride = c.buildOverride

	return out
}
