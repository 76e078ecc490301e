// Package gen holds genny templates for the collection types used by the
// kernel. The templates compile as ordinary Go so they can be tested here;
// consuming packages generate their own specializations with go:generate.
package gen

import (
	"github.com/cheekybits/genny/generic"
)

// Generic is the element type list specializations are generated for.
type Generic generic.Type

// GenericNodeDL is a node of a GenericListDL. Nodes are handed out by a
// GenericNodePool and hold their element by value.
type GenericNodeDL struct {
	prev, next *GenericNodeDL

	// Value is the element stored in this node.
	Value Generic
}

// Next returns the successor of this node, or nil for the last node.
func (n *GenericNodeDL) Next() *GenericNodeDL {
	return n.next
}

// Prev returns the predecessor of this node, or nil for the first node.
func (n *GenericNodeDL) Prev() *GenericNodeDL {
	return n.prev
}

// GenericListDL implements a doubly linked list that is not safe for
// concurrent use. The zero value is an empty list.
type GenericListDL struct {
	head, tail *GenericNodeDL
	size       int
}

// Empty returns true if the list contains no nodes.
func (l *GenericListDL) Empty() bool {
	return l.head == nil
}

// Len returns the number of nodes in the list.
func (l *GenericListDL) Len() int {
	return l.size
}

// First returns the first node in the list, or nil if the list is empty.
func (l *GenericListDL) First() *GenericNodeDL {
	return l.head
}

// Last returns the last node in the list, or nil if the list is empty.
func (l *GenericListDL) Last() *GenericNodeDL {
	return l.tail
}

// PushNode inserts n at the front of the list. It panics if n still carries
// links to another list.
func (l *GenericListDL) PushNode(n *GenericNodeDL) {
	if n.prev != nil || n.next != nil {
		panic("list node is already linked")
	}

	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	} else {
		l.tail = n
	}
	l.head = n
	l.size++
}

// AppendNode inserts n at the back of the list. It panics if n still carries
// links to another list.
func (l *GenericListDL) AppendNode(n *GenericNodeDL) {
	if n.prev != nil || n.next != nil {
		panic("list node is already linked")
	}

	n.prev = l.tail
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.size++
}

// RemoveNode unlinks n from the list. The caller must guarantee that n is a
// member of this list; membership of the list ends is verified and violations
// panic.
func (l *GenericListDL) RemoveNode(n *GenericNodeDL) {
	if n.prev == nil {
		if l.head != n {
			panic("list node is not a member of this list")
		}
		l.head = n.next
	} else {
		n.prev.next = n.next
	}

	if n.next == nil {
		if l.tail != n {
			panic("list node is not a member of this list")
		}
		l.tail = n.prev
	} else {
		n.next.prev = n.prev
	}

	n.prev = nil
	n.next = nil
	l.size--
}

// PopNode removes and returns the first node of the list, or nil if the list
// is empty.
func (l *GenericListDL) PopNode() *GenericNodeDL {
	n := l.head
	if n == nil {
		return nil
	}

	l.RemoveNode(n)
	return n
}

// TraverseNodes walks the list from the front, invoking fn for each node.
// The traversal stops at the first error which is then returned to the
// caller.
func (l *GenericListDL) TraverseNodes(fn func(n *GenericNodeDL) error) error {
	for n := l.head; n != nil; n = n.next {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// GenericNodePool hands out list nodes from an arena allocated once at pool
// construction so that steady-state list operations perform no allocation.
type GenericNodePool struct {
	nodes []GenericNodeDL
	free  *GenericNodeDL
}

// NewGenericNodePool returns a pool holding capacity nodes.
func NewGenericNodePool(capacity int) *GenericNodePool {
	pool := &GenericNodePool{nodes: make([]GenericNodeDL, capacity)}
	for i := capacity - 1; i >= 0; i-- {
		pool.nodes[i].next = pool.free
		pool.free = &pool.nodes[i]
	}
	return pool
}

// Get returns an unlinked node from the pool, or nil if the pool is
// exhausted.
func (p *GenericNodePool) Get() *GenericNodeDL {
	n := p.free
	if n == nil {
		return nil
	}

	p.free = n.next
	n.next = nil
	return n
}

// Put returns a node obtained from Get back to the pool. The node must be
// unlinked.
func (p *GenericNodePool) Put(n *GenericNodeDL) {
	if n.prev != nil || n.next != nil {
		panic("list node is still linked")
	}

	n.next = p.free
	p.free = n
}
