package jsontree

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML document into a Value. Mapping keys keep their
// document order. JSON is valid YAML, so either form is accepted.
func ParseYAML(data []byte) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Value{}, fmt.Errorf("jsontree: %w", err)
	}
	if doc.Kind == 0 {
		return Null(), nil
	}
	return fromNode(&doc)
}

func fromNode(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.MappingNode:
		out := emptyMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("jsontree: line %d: mapping key must be a scalar", k.Line)
			}
			val, err := fromNode(n.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			out.put(k.Value, val)
		}
		return out, nil
	case yaml.SequenceNode:
		out := Value{kind: KindSeq, items: make([]Value, 0, len(n.Content))}
		for _, c := range n.Content {
			val, err := fromNode(c)
			if err != nil {
				return Value{}, err
			}
			out.items = append(out.items, val)
		}
		return out, nil
	case yaml.ScalarNode:
		return fromScalar(n)
	default:
		return Value{}, fmt.Errorf("jsontree: line %d: unsupported yaml node", n.Line)
	}
}

func fromScalar(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, fmt.Errorf("jsontree: line %d: %w", n.Line, err)
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return Value{}, fmt.Errorf("jsontree: line %d: %w", n.Line, err)
		}
		return Value{kind: KindScalar, scalar: json.Number(strconv.FormatInt(i, 10))}, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("jsontree: line %d: %w", n.Line, err)
		}
		return Number(f), nil
	default:
		return String(n.Value), nil
	}
}
