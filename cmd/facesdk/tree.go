package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/m1gwings/treedrawer/tree"
)

// maxChildren caps how many array elements are drawn per node.
const maxChildren = 16

func drawTree(lit any) string {
	t := tree.NewTree(tree.NodeString(label("", lit)))
	addChildren(t, lit)
	return t.String()
}

func addChildren(t *tree.Tree, v any) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addChildren(t.AddChild(tree.NodeString(label(k, x[k]))), x[k])
		}
	case []any:
		for i, e := range x {
			if i == maxChildren {
				t.AddChild(tree.NodeString(fmt.Sprintf("... %d more", len(x)-i)))
				break
			}
			addChildren(t.AddChild(tree.NodeString(label(strconv.Itoa(i), e))), e)
		}
	}
}

func label(name string, v any) string {
	s := summary(v)
	if name == "" {
		return s
	}
	return name + ": " + s
}

// summary renders a literal on one line, collapsing containers.
func summary(v any) string {
	switch x := v.(type) {
	case nil:
		return "none"
	case map[string]any:
		return fmt.Sprintf("{%d}", len(x))
	case []any:
		return fmt.Sprintf("[%d]", len(x))
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(x))
	case string:
		return strconv.Quote(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
