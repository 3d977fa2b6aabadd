package generation

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/mosaicolabs/mosaico-go/internal/models/query"
)

// BuildProxy walks a field set depth-first and produces the root group
// Node for one registered ontology or catalog type. rootPath is the node's
// top-level path segment (the ontology tag for an ontology type, or the
// empty string for a catalog type whose fields sit at the root).
func BuildProxy(domain query.Domain, rootPath string, fields []arrow.Field) *Node {
	return &Node{path: rootPath, domain: domain, kind: LeafGroup, children: buildChildren(domain, rootPath, fields)}
}

func buildChildren(domain query.Domain, parentPath string, fields []arrow.Field) map[string]*Node {
	children := make(map[string]*Node, len(fields))
	for _, f := range fields {
		path := f.Name
		if parentPath != "" {
			path = parentPath + "." + f.Name
		}
		children[f.Name] = buildNode(domain, path, f.Type)
	}
	return children
}

// buildNode classifies one Arrow field's type into its operator mixin and
// recurses for struct columns.
func buildNode(domain query.Domain, path string, dt arrow.DataType) *Node {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return &Node{path: path, domain: domain, kind: LeafNumeric}

	case arrow.BOOL:
		return &Node{path: path, domain: domain, kind: LeafBool}

	case arrow.STRING, arrow.LARGE_STRING, arrow.BINARY, arrow.LARGE_BINARY:
		return &Node{path: path, domain: domain, kind: LeafString}

	case arrow.DATE32, arrow.DATE64, arrow.TIME32, arrow.TIME64,
		arrow.TIMESTAMP:
		return &Node{path: path, domain: domain, kind: LeafDatetime}

	case arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST:
		return &Node{path: path, domain: domain, kind: LeafUnsupported}

	case arrow.STRUCT:
		st := dt.(*arrow.StructType)
		return &Node{path: path, domain: domain, kind: LeafGroup, children: buildChildren(domain, path, st.Fields())}

	case arrow.MAP:
		// A dict-typed field (e.g. free-form "user_metadata"): modelled as
		// a dynamic proxy supporting only Index(key) access.
		return &Node{path: path, domain: domain, kind: LeafDynamic}

	default:
		return &Node{path: path, domain: domain, kind: LeafUnsupported}
	}
}
