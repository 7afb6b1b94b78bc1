package page

import "sync"

// Node is a participant's position in the component tree.
//
// A Node without a parent is the root and never appears in selectors.
type Node struct {
	Tag     string
	ID      string
	Name    string
	Classes []string
	Attrs   map[string]string

	mu       sync.RWMutex
	parent   *Node
	children []*Node
}

// NewNode creates a detached node.
func NewNode(tag string, classes ...string) *Node {
	return &Node{Tag: tag, Classes: classes}
}

// NewRoot creates the root node of a tree.
func NewRoot() *Node {
	return NewNode("body")
}

// WithID sets the id and returns n.
func (n *Node) WithID(id string) *Node {
	n.ID = id
	return n
}

// WithName sets the name and returns n.
func (n *Node) WithName(name string) *Node {
	n.Name = name
	return n
}

// WithAttr sets an attribute and returns n.
func (n *Node) WithAttr(key, value string) *Node {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[key] = value
	return n
}

// Append attaches child under n and returns child.
func (n *Node) Append(child *Node) *Node {
	if old := child.Parent(); old != nil {
		old.Remove(child)
	}
	n.mu.Lock()
	n.children = append(n.children, child)
	n.mu.Unlock()

	child.mu.Lock()
	child.parent = n
	child.mu.Unlock()
	return child
}

// Remove detaches child from n.
func (n *Node) Remove(child *Node) {
	n.mu.Lock()
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
	n.mu.Unlock()

	child.mu.Lock()
	if child.parent == n {
		child.parent = nil
	}
	child.mu.Unlock()
}

// Parent returns the parent node, or nil for a root or detached node.
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]*Node(nil), n.children...)
}

// Contains reports whether other is n or a descendant of n.
func (n *Node) Contains(other *Node) bool {
	for cur := other; cur != nil; cur = cur.Parent() {
		if cur == n {
			return true
		}
	}
	return false
}

func (n *Node) sameShape(other *Node) bool {
	if n.Tag != other.Tag || len(n.Classes) != len(other.Classes) {
		return false
	}
	for i := range n.Classes {
		if n.Classes[i] != other.Classes[i] {
			return false
		}
	}
	return true
}
