package generation

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicolabs/mosaico-go/internal/models/query"
)

func imuFields() []arrow.Field {
	return []arrow.Field{
		{Name: "acceleration", Type: arrow.StructOf(
			arrow.Field{Name: "x", Type: arrow.PrimitiveTypes.Float64},
			arrow.Field{Name: "y", Type: arrow.PrimitiveTypes.Float64},
		)},
		{Name: "frame_id", Type: arrow.BinaryTypes.String},
		{Name: "calibrated", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "acquired_at", Type: arrow.FixedWidthTypes.Timestamp_ns},
		{Name: "samples", Type: arrow.ListOf(arrow.PrimitiveTypes.Float64)},
		{Name: "user_metadata", Type: arrow.MapOf(arrow.BinaryTypes.String, arrow.BinaryTypes.String)},
	}
}

func mustField(t *testing.T, n *Node, name string) *Node {
	t.Helper()
	child, err := n.Field(name)
	require.NoError(t, err)
	return child
}

func TestProxyLeafClassification(t *testing.T) {
	root := BuildProxy(query.DomainOntology, "imu", imuFields())

	assert.Equal(t, LeafGroup, root.Kind())
	assert.Equal(t, LeafGroup, mustField(t, root, "acceleration").Kind())
	assert.Equal(t, LeafNumeric, mustField(t, mustField(t, root, "acceleration"), "x").Kind())
	assert.Equal(t, LeafString, mustField(t, root, "frame_id").Kind())
	assert.Equal(t, LeafBool, mustField(t, root, "calibrated").Kind())
	assert.Equal(t, LeafDatetime, mustField(t, root, "acquired_at").Kind())
	assert.Equal(t, LeafUnsupported, mustField(t, root, "samples").Kind())
	assert.Equal(t, LeafDynamic, mustField(t, root, "user_metadata").Kind())
}

func TestProxyPaths(t *testing.T) {
	root := BuildProxy(query.DomainOntology, "imu", imuFields())
	x := mustField(t, mustField(t, root, "acceleration"), "x")
	assert.Equal(t, "imu.acceleration.x", x.Path())

	// Catalog proxies root at the empty path.
	catalog := BuildProxy(query.DomainTopic, "", []arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
	})
	assert.Equal(t, "name", mustField(t, catalog, "name").Path())
}

func TestProxyInvalidFieldListsAvailable(t *testing.T) {
	root := BuildProxy(query.DomainOntology, "imu", imuFields())
	_, err := root.Field("nonexistent")
	require.ErrorIs(t, err, query.ErrInvalidField)
	assert.Contains(t, err.Error(), "acceleration")
	assert.Contains(t, err.Error(), "frame_id")
}

func TestProxyDictAccess(t *testing.T) {
	root := BuildProxy(query.DomainTopic, "", imuFields())
	meta := mustField(t, root, "user_metadata")

	// Dot access on a dict proxy raises a descriptive error.
	_, err := meta.Field("serial")
	require.ErrorIs(t, err, query.ErrInvalidField)
	assert.Contains(t, err.Error(), "Index")

	leaf, err := meta.Index("serial")
	require.NoError(t, err)
	assert.Equal(t, "user_metadata.serial", leaf.Path())
	assert.Equal(t, LeafDynamic, leaf.Kind())

	// Index on a non-dict node is rejected.
	_, err = mustField(t, root, "frame_id").Index("k")
	require.ErrorIs(t, err, query.ErrInvalidField)
}

func TestProxyOperatorMixins(t *testing.T) {
	root := BuildProxy(query.DomainOntology, "imu", imuFields())
	x := mustField(t, mustField(t, root, "acceleration"), "x")
	frameID := mustField(t, root, "frame_id")
	calibrated := mustField(t, root, "calibrated")
	samples := mustField(t, root, "samples")

	e, err := x.Geq(0.5)
	require.NoError(t, err)
	assert.Equal(t, query.Expression{Domain: query.DomainOntology, KeyPath: "imu.acceleration.x", Operator: "$geq", Value: 0.5}, e)

	_, err = x.Match("foo")
	require.ErrorIs(t, err, query.ErrInvalidOperator)

	e, err = frameID.Match("base_.*")
	require.NoError(t, err)
	assert.Equal(t, "$match", e.Operator)

	_, err = frameID.Between("a", "z")
	require.ErrorIs(t, err, query.ErrInvalidOperator)

	_, err = frameID.Eq(42)
	require.ErrorIs(t, err, query.ErrValueType)

	e, err = calibrated.Eq(true)
	require.NoError(t, err)
	assert.Equal(t, true, e.Value)

	_, err = calibrated.Lt(true)
	require.ErrorIs(t, err, query.ErrInvalidOperator)

	// Unsupported (list) leaves expose no operators at all.
	_, err = samples.Eq(1.0)
	require.ErrorIs(t, err, query.ErrInvalidOperator)
}

func TestProxyDatetimeNormalization(t *testing.T) {
	root := BuildProxy(query.DomainOntology, "imu", imuFields())
	acquired := mustField(t, root, "acquired_at")

	dt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	e, err := acquired.Leq(dt)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01T00:00:00Z", e.Value)

	e, err = acquired.Between(int64(1_000), int64(2_000))
	require.NoError(t, err)
	assert.Equal(t, []any{"1000", "2000"}, e.Value)

	_, err = acquired.Eq(1.5)
	require.ErrorIs(t, err, query.ErrValueType)
}

func TestProxyInOperators(t *testing.T) {
	root := BuildProxy(query.DomainOntology, "imu", imuFields())
	x := mustField(t, mustField(t, root, "acceleration"), "x")
	frameID := mustField(t, root, "frame_id")

	e, err := x.In(1.0, 2.0)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, e.Value)

	e, err = frameID.InStrings("a", "b")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, e.Value)

	_, err = x.InStrings("a")
	require.ErrorIs(t, err, query.ErrInvalidOperator)
}
