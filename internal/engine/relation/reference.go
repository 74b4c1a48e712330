// Package relation resolves relation declarations into concrete contract
// references. References may name types that do not exist yet: resolution is
// lazy and memoized, so circular entity graphs (A -> B -> A) resolve once both
// sides have registered, even before either contract is fully generated.
package relation

import "strings"

// PathSeparator separates the namespace from the entity name in a qualified
// reference such as "billing.Invoice".
const PathSeparator = "."

// Reference is a relation declaration: a direct contract, a lazy name
// resolved against the declaring namespace, a qualified cross-namespace path,
// or an ordered union of alternatives.
type Reference interface {
	isReference()
}

// Direct references an already-built contract value
type Direct struct {
	Contract interface{}
}

// Lazy references a sibling entity by bare name, resolved against the
// declaring entity's namespace
type Lazy struct {
	Name string
}

// Path references an entity by qualified "namespace.Name" path
type Path struct {
	Qualified string
}

// Union references an ordered set of polymorphic alternatives
type Union struct {
	Alternatives []Reference
}

func (Direct) isReference() {}
func (Lazy) isReference()   {}
func (Path) isReference()   {}
func (Union) isReference()  {}

// Qualify joins a namespace and a bare name into a qualified key
func Qualify(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + PathSeparator + name
}

// SplitQualified splits a qualified path into namespace and name. A path
// without a separator has an empty namespace.
func SplitQualified(qualified string) (namespace, name string) {
	idx := strings.LastIndex(qualified, PathSeparator)
	if idx < 0 {
		return "", qualified
	}
	return qualified[:idx], qualified[idx+1:]
}

// IsQualified returns true if the name contains a namespace separator
func IsQualified(name string) bool {
	return strings.Contains(name, PathSeparator)
}
