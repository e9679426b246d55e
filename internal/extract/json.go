package extract

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
	"github.com/tidwall/gjson"
)

var ErrInvalidJSON = errors.New("invalid json document")

// ParseJSON converts a JSON document into a Node tree, keeping key order.
func ParseJSON(data []byte) (*Node, error) {
	text, _ := DecodeText(data)
	if strings.TrimSpace(text) == "" || !gjson.Valid(text) {
		return nil, ErrInvalidJSON
	}
	return jsonNode(gjson.Parse(text)), nil
}

func jsonNode(r gjson.Result) *Node {
	switch {
	case r.IsObject():
		n := Mapping()
		r.ForEach(func(key, value gjson.Result) bool {
			n.Fields = append(n.Fields, Field{Key: key.String(), Value: jsonNode(value)})
			return true
		})
		return n
	case r.IsArray():
		n := Sequence()
		r.ForEach(func(_, value gjson.Result) bool {
			n.Items = append(n.Items, jsonNode(value))
			return true
		})
		return n
	}

	switch r.Type {
	case gjson.String:
		return Scalar(domain.StringValue(r.Str))
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if i, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return RawScalar(domain.IntValue(i), r.Raw)
			}
		}
		return RawScalar(domain.FloatValue(r.Num), r.Raw)
	case gjson.True:
		return Scalar(domain.BoolValue(true))
	case gjson.False:
		return Scalar(domain.BoolValue(false))
	default:
		return Scalar(domain.NullValue())
	}
}

// JSONExtractor emits one chunk per scalar leaf.
type JSONExtractor struct{}

func (e *JSONExtractor) ChunkType() domain.ChunkType {
	return domain.ChunkTypeJSON
}

func (e *JSONExtractor) Extract(ctx context.Context, src Source) ([]domain.ChunkDraft, error) {
	root, err := ParseJSON(src.Data)
	if err != nil {
		return nil, err
	}
	return leafDrafts(root, src, domain.ChunkTypeJSON), nil
}
