package extract

import (
	"context"
	"strconv"

	"github.com/cloo-solutions/coachkb/internal/domain"
)

// NodeKind tags a structured value.
type NodeKind int

const (
	ScalarNode NodeKind = iota
	MappingNode
	SequenceNode
)

// Field is one key of a mapping, in document order.
type Field struct {
	Key   string
	Value *Node
}

// Node is a parsed JSON or YAML value. Raw keeps a number's source text.
type Node struct {
	Kind   NodeKind
	Scalar domain.Value
	Raw    string
	Fields []Field
	Items  []*Node
}

func Scalar(v domain.Value) *Node { return &Node{Kind: ScalarNode, Scalar: v} }

// RawScalar is a scalar rendered from its source text.
func RawScalar(v domain.Value, raw string) *Node {
	return &Node{Kind: ScalarNode, Scalar: v, Raw: raw}
}

func Mapping(fields ...Field) *Node { return &Node{Kind: MappingNode, Fields: fields} }

func Sequence(items ...*Node) *Node { return &Node{Kind: SequenceNode, Items: items} }

// Leaf is a scalar reached by a dotted/indexed path.
type Leaf struct {
	Path  string
	Value domain.Value
	Raw   string
}

// Content renders the leaf as "path: value", preferring the source text.
func (l Leaf) Content() string {
	text := l.Raw
	if text == "" {
		text = l.Value.String()
	}
	if l.Path == "" {
		return text
	}
	return l.Path + ": " + text
}

// Flatten returns one leaf per scalar in n, in document order. Mapping keys
// join with ".", sequence elements append "[i]".
func Flatten(n *Node) []Leaf {
	var leaves []Leaf
	flatten(n, "", &leaves)
	return leaves
}

func flatten(n *Node, path string, out *[]Leaf) {
	if n == nil {
		*out = append(*out, Leaf{Path: path, Value: domain.NullValue()})
		return
	}
	switch n.Kind {
	case ScalarNode:
		*out = append(*out, Leaf{Path: path, Value: n.Scalar, Raw: n.Raw})
	case MappingNode:
		for _, f := range n.Fields {
			child := f.Key
			if path != "" {
				child = path + "." + f.Key
			}
			flatten(f.Value, child, out)
		}
	case SequenceNode:
		for i, item := range n.Items {
			flatten(item, path+"["+strconv.Itoa(i)+"]", out)
		}
	}
}

// CountScalars counts scalar leaves without building paths.
func CountScalars(n *Node) int {
	if n == nil {
		return 1
	}
	switch n.Kind {
	case MappingNode:
		total := 0
		for _, f := range n.Fields {
			total += CountScalars(f.Value)
		}
		return total
	case SequenceNode:
		total := 0
		for _, item := range n.Items {
			total += CountScalars(item)
		}
		return total
	default:
		return 1
	}
}

func leafDrafts(root *Node, src Source, chunkType domain.ChunkType) []domain.ChunkDraft {
	leaves := Flatten(root)
	drafts := make([]domain.ChunkDraft, 0, len(leaves))
	for _, leaf := range leaves {
		meta := domain.Metadata{}.Set("path", domain.StringValue(leaf.Path))
		drafts = append(drafts, domain.NewChunkDraft(leaf.Content(), src.Name, chunkType, meta))
	}
	return drafts
}

// StructuredExtractor flattens an already parsed tree. It backs seed
// knowledge that is not read from a file.
type StructuredExtractor struct {
	Parse func(data []byte) ([]*Node, error)
}

func (e *StructuredExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeStructured
}

func (e *StructuredExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	roots, err := e.Parse(src.Data)
	if err != nil {
		return nil, err
	}
	var drafts []domain.ChunkDraft
	for _, root := range roots {
		drafts = append(drafts, leafDrafts(root, src, domain.ChunkTypeStructured)...)
	}
	return drafts, nil
}
