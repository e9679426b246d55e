package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"gopkg.in/yaml.v3"
)

// ParseYAML converts every document in data into a Node tree.
func ParseYAML(data []byte) ([]*Node, error) {
	text, _ := DecodeText(data)
	dec := yaml.NewDecoder(bytes.NewReader([]byte(text)))

	b := &yamlBuilder{}
	var roots []*Node
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(doc.Content) == 0 {
			continue
		}
		n, err := b.node(doc.Content[0])
		if err != nil {
			return nil, err
		}
		roots = append(roots, n)
	}
	return roots, nil
}

// MaxYAMLNodes caps the expanded size of a YAML file, counted across all of
// its documents with aliases expanded.
const MaxYAMLNodes = 100_000

// ErrYAMLTooLarge is returned when alias expansion exceeds MaxYAMLNodes.
var ErrYAMLTooLarge = errors.New("yaml document expands beyond node limit")

type yamlBuilder struct {
	nodes int
}

func (b *yamlBuilder) node(n *yaml.Node) (*Node, error) {
	b.nodes++
	if b.nodes > MaxYAMLNodes {
		return nil, fmt.Errorf("%w (%d)", ErrYAMLTooLarge, MaxYAMLNodes)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Scalar(domain.NullValue()), nil
		}
		return b.node(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, fmt.Errorf("unknown yaml alias at line %d", n.Line)
		}
		return b.node(n.Alias)
	case yaml.MappingNode:
		out := Mapping()
		for i := 0; i+1 < len(n.Content); i += 2 {
			value, err := b.node(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, Field{Key: n.Content[i].Value, Value: value})
		}
		return out, nil
	case yaml.SequenceNode:
		out := Sequence()
		for _, item := range n.Content {
			value, err := b.node(item)
			if err != nil {
				return nil, err
			}
			out.Items = append(out.Items, value)
		}
		return out, nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	default:
		return nil, fmt.Errorf("unsupported yaml node kind %d at line %d", n.Kind, n.Line)
	}
}

func yamlScalar(n *yaml.Node) (*Node, error) {
	switch n.ShortTag() {
	case "!!null":
		return Scalar(domain.NullValue()), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return Scalar(domain.BoolValue(b)), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return RawScalar(domain.IntValue(i), n.Value), nil
		}
		return Scalar(domain.StringValue(n.Value)), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return RawScalar(domain.FloatValue(f), n.Value), nil
	default:
		return Scalar(domain.StringValue(n.Value)), nil
	}
}

// YAMLExtractor emits one chunk per scalar leaf across all documents.
type YAMLExtractor struct{}

func (e *YAMLExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeYAML
}

func (e *YAMLExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	roots, err := ParseYAML(src.Data)
	if err != nil {
		return nil, err
	}
	var drafts []domain.ChunkDraft
	for _, root := range roots {
		drafts = append(drafts, leafDrafts(root, src, domain.ChunkTypeYAML)...)
	}
	return drafts, nil
}
