package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustExpr(t *testing.T, domain Domain, keyPath, op string, value any) Expression {
	t.Helper()
	e, err := NewScalar(domain, keyPath, op, value)
	require.NoError(t, err)
	return e
}

func TestBuilderRejectsDuplicateKeyPathPreservingState(t *testing.T) {
	b := NewQueryTopic("user_metadata")
	require.NoError(t, b.Add(mustExpr(t, DomainTopic, "name", OpEq, "t1")))

	// The rejected duplicate must leave the builder untouched.
	err := b.Add(mustExpr(t, DomainTopic, "name", OpNeq, "t2"))
	require.ErrorIs(t, err, ErrDuplicateKeyPath)

	assert.Equal(t, map[string]any{"name": map[string]any{"$eq": "t1"}}, b.ToDict())
}

func TestBuilderRejectsWrongDomain(t *testing.T) {
	b := NewQuerySequence()
	err := b.Add(mustExpr(t, DomainTopic, "name", OpEq, "x"))
	require.ErrorIs(t, err, ErrDomainMismatch)
}

func TestSequenceBuilderDictNesting(t *testing.T) {
	b := NewQuerySequence("user_metadata")
	require.NoError(t, b.Add(mustExpr(t, DomainSequence, "name", OpMatch, "drive-.*")))
	require.NoError(t, b.Add(mustExpr(t, DomainSequence, "user_metadata.vehicle", OpEq, "demo-01")))
	require.NoError(t, b.Add(mustExpr(t, DomainSequence, "user_metadata.route", OpEq, "A7")))

	assert.Equal(t, map[string]any{
		"name": map[string]any{"$match": "drive-.*"},
		"user_metadata": map[string]any{
			"vehicle": map[string]any{"$eq": "demo-01"},
			"route":   map[string]any{"$eq": "A7"},
		},
	}, b.ToDict())
}

func TestOntologyBuilderSingleTagRule(t *testing.T) {
	b := NewQueryOntologyCatalog()
	require.NoError(t, b.Add(mustExpr(t, DomainOntology, "imu.acceleration.x", OpGeq, 0.5)))
	require.NoError(t, b.Add(mustExpr(t, DomainOntology, "imu.acceleration.y", OpLt, 2.0)))

	// A second ontology tag is rejected without disturbing prior state.
	err := b.Add(mustExpr(t, DomainOntology, "image.format", OpEq, "png"))
	require.ErrorIs(t, err, ErrNotImplemented)

	assert.Equal(t, map[string]any{
		"imu.acceleration.x": map[string]any{"$geq": 0.5},
		"imu.acceleration.y": map[string]any{"$lt": 2.0},
	}, b.ToDict())
}

func TestQueryCombinesBuildersByDomain(t *testing.T) {
	topicB := NewQueryTopic("user_metadata")
	require.NoError(t, topicB.Add(mustExpr(t, DomainTopic, "user_metadata.serial", OpEq, "X")))

	ontologyB := NewQueryOntologyCatalog()
	require.NoError(t, ontologyB.Add(mustExpr(t, DomainOntology, "imu.acceleration.x", OpGeq, 0.5)))

	q, err := NewQuery(topicB, ontologyB)
	require.NoError(t, err)

	// The exact combined payload shape.
	assert.Equal(t, map[string]any{
		"topic": map[string]any{
			"user_metadata": map[string]any{"serial": map[string]any{"$eq": "X"}},
		},
		"ontology": map[string]any{
			"imu.acceleration.x": map[string]any{"$geq": 0.5},
		},
	}, q.ToDict())
}

func TestQueryRejectsDuplicateDomain(t *testing.T) {
	a := NewQueryTopic()
	b := NewQueryTopic()
	_, err := NewQuery(a, b)
	require.ErrorIs(t, err, ErrDuplicateDomain)
}

func TestQuerySkipsNilBuilders(t *testing.T) {
	q, err := NewQuery(nil, NewQueryTopic())
	require.NoError(t, err)
	assert.Len(t, q.ToDict(), 1)
}
