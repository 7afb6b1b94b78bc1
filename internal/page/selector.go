package page

import (
	"strconv"
	"strings"
)

const (
	maxElementDepth = 4
	maxFieldDepth   = 3
)

// ElementSelector derives a stable selector for a scroll container.
//
// An id wins outright. Otherwise the selector is the ancestor path up to
// four levels, each level qualified by its first class and, when siblings
// share tag and classes, by its position among them.
func ElementSelector(n *Node) string {
	if n == nil {
		return ""
	}
	if n.ID != "" {
		return "#" + n.ID
	}
	return ancestorPath(n, maxElementDepth, true)
}

// FieldSelector derives a stable selector for a form field:
// id, then name attribute, then an ancestor path up to three levels.
func FieldSelector(n *Node) string {
	if n == nil {
		return ""
	}
	if n.ID != "" {
		return "#" + n.ID
	}
	if n.Name != "" {
		return `[name="` + n.Name + `"]`
	}
	return ancestorPath(n, maxFieldDepth, false)
}

func ancestorPath(n *Node, depth int, positional bool) string {
	var path []string
	for cur := n; cur != nil && cur.Parent() != nil; cur = cur.Parent() {
		sel := strings.ToLower(cur.Tag)
		if cur.ID != "" {
			path = append(path, sel+"#"+cur.ID)
			break
		}
		if len(cur.Classes) > 0 && cur.Classes[0] != "" {
			sel += "." + cur.Classes[0]
		}
		if positional {
			if idx, shared := siblingIndex(cur); shared {
				sel += ":nth-child(" + strconv.Itoa(idx) + ")"
			}
		}
		path = append(path, sel)
		if len(path) >= depth {
			break
		}
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, " > ")
}

// siblingIndex returns n's 1-based position among siblings of the same
// shape and whether more than one such sibling exists.
func siblingIndex(n *Node) (int, bool) {
	parent := n.Parent()
	if parent == nil {
		return 0, false
	}
	idx, count := 0, 0
	for _, c := range parent.Children() {
		if !c.sameShape(n) {
			continue
		}
		count++
		if c == n {
			idx = count
		}
	}
	return idx, count > 1
}
