package mosaico

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/mosaicolabs/mosaico-go/internal/models/query"
	"github.com/mosaicolabs/mosaico-go/internal/models/query/generation"
)

// Re-exported query DSL surface. The builders, expressions, and
// proxy nodes live in internal packages; these aliases are the supported way
// for an embedding application to name them.
type (
	QueryBuilder         = query.Builder
	QueryExpression      = query.Expression
	QuerySequence        = query.QuerySequence
	QueryTopic           = query.QueryTopic
	QueryOntologyCatalog = query.QueryOntologyCatalog
	QueryResponse        = query.Response
	QueryResponseItem    = query.ResponseItem
	QueryDomain          = query.Domain
	ProxyNode            = generation.Node
)

// Query domains, one per builder variant.
const (
	QueryDomainOntology = query.DomainOntology
	QueryDomainTopic    = query.DomainTopic
	QueryDomainSequence = query.DomainSequence
)

// NewQuerySequence builds an empty sequence-catalog query builder.
// dictFields names the free-form dict fields (normally "user_metadata")
// whose sub-keys nest rather than flatten in the wire payload.
func NewQuerySequence(dictFields ...string) *QuerySequence {
	return query.NewQuerySequence(dictFields...)
}

// NewQueryTopic builds an empty topic-catalog query builder.
func NewQueryTopic(dictFields ...string) *QueryTopic {
	return query.NewQueryTopic(dictFields...)
}

// NewQueryOntologyCatalog builds an empty ontology-catalog query builder,
// scoped to a single ontology tag by its first accepted expression.
func NewQueryOntologyCatalog() *QueryOntologyCatalog {
	return query.NewQueryOntologyCatalog()
}

// BuildOntologyProxy walks an ontology payload's schema and returns the root
// proxy node whose Field/Index accessors descend to typed queryable leaves.
// The returned node's children sit under the ontology tag, so a leaf's
// key-path reads "tag.nested.path".
func BuildOntologyProxy(data Serializable) *ProxyNode {
	return generation.BuildProxy(query.DomainOntology, data.OntologyTag(), data.Schema().Fields())
}

// BuildCatalogProxy walks an arbitrary catalog field set (sequence or topic
// catalog columns) into a proxy tree rooted at the empty path, for the
// sequence/topic query domains.
func BuildCatalogProxy(domain QueryDomain, fields []arrow.Field) *ProxyNode {
	return generation.BuildProxy(domain, "", fields)
}
