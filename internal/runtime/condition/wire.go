package condition

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/drblury/docflow/internal/runtime/jsoncodec"
)

// ErrInvalidExpr is wrapped by every decoding failure.
var ErrInvalidExpr = errors.New("docflow: invalid condition")

// Parse decodes the wire shape: {"and":[...]}, {"or":[...]}, {"not":{...}}
// or a leaf {"path":...,"op":...,"value":...}. JSON null decodes to a nil
// Expr, which always holds.
func Parse(data []byte) (Expr, error) {
	var tree any
	if err := jsoncodec.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpr, err)
	}
	return FromTree(tree)
}

// Marshal encodes expr in the wire shape.
func Marshal(expr Expr) ([]byte, error) {
	tree, err := ToTree(expr)
	if err != nil {
		return nil, err
	}
	return jsoncodec.Marshal(tree)
}

// FromTree builds an Expr from an already decoded JSON or YAML tree.
func FromTree(tree any) (Expr, error) {
	if tree == nil {
		return nil, nil
	}
	node, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidExpr, tree)
	}

	if children, ok := node["and"]; ok {
		exprs, err := fromList("and", children, len(node))
		if err != nil {
			return nil, err
		}
		return AndExpr(exprs), nil
	}
	if children, ok := node["or"]; ok {
		exprs, err := fromList("or", children, len(node))
		if err != nil {
			return nil, err
		}
		return OrExpr(exprs), nil
	}
	if child, ok := node["not"]; ok {
		if len(node) != 1 {
			return nil, fmt.Errorf("%w: not must be the only key", ErrInvalidExpr)
		}
		inner, err := FromTree(child)
		if err != nil {
			return nil, err
		}
		return NotExpr{Expr: inner}, nil
	}
	return fromLeaf(node)
}

func fromList(name string, raw any, keys int) ([]Expr, error) {
	if keys != 1 {
		return nil, fmt.Errorf("%w: %s must be the only key", ErrInvalidExpr, name)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s expects an array", ErrInvalidExpr, name)
	}
	exprs := make([]Expr, 0, len(list))
	for i, item := range list {
		expr, err := FromTree(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

func fromLeaf(node map[string]any) (Expr, error) {
	path, _ := node["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidExpr)
	}
	opName, _ := node["op"].(string)
	op := Op(opName)
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpr, opName)
	}
	for key := range node {
		if key != "path" && key != "op" && key != "value" {
			return nil, fmt.Errorf("%w: unexpected key %q", ErrInvalidExpr, key)
		}
	}
	value, hasValue := node["value"]
	if !hasValue && op != OpExists {
		return nil, fmt.Errorf("%w: %s requires a value", ErrInvalidExpr, op)
	}
	if op == OpMatches {
		pattern, ok := value.(string)
		if !ok || !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: invalid pattern %v", ErrInvalidExpr, value)
		}
	}
	return Test{Path: path, Op: op, Value: value}, nil
}

// ToTree converts expr to its wire tree. Only the built-in node types can
// be encoded.
func ToTree(expr Expr) (any, error) {
	switch e := expr.(type) {
	case nil:
		return nil, nil
	case Test:
		leaf := map[string]any{"path": e.Path, "op": string(e.Op)}
		if e.Op != OpExists {
			leaf["value"] = e.Value
		}
		return leaf, nil
	case AndExpr:
		children, err := toList(e)
		return map[string]any{"and": children}, err
	case OrExpr:
		children, err := toList(e)
		return map[string]any{"or": children}, err
	case NotExpr:
		inner, err := ToTree(e.Expr)
		return map[string]any{"not": inner}, err
	default:
		return nil, fmt.Errorf("%w: cannot encode %T", ErrInvalidExpr, expr)
	}
}

func toList(exprs []Expr) ([]any, error) {
	out := make([]any, 0, len(exprs))
	for _, e := range exprs {
		tree, err := ToTree(e)
		if err != nil {
			return nil, err
		}
		out = append(out, tree)
	}
	return out, nil
}
