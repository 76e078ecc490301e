// This file was automatically generated by genny.
// Any changes will be lost if this file is regenerated.
// see https://github.com/cheekybits/genny

package task

// ThreadIDNodeDL is a node of a ThreadIDListDL. Nodes are handed out by a
// ThreadIDNodePool and hold their element by value.
type ThreadIDNodeDL struct {
	prev, next *ThreadIDNodeDL

	// Value is the element stored in this node.
	Value ThreadID
}

// Next returns the successor of this node, or nil for the last node.
func (n *ThreadIDNodeDL) Next() *ThreadIDNodeDL {
	return n.next
}

// Prev returns the predecessor of this node, or nil for the first node.
func (n *ThreadIDNodeDL) Prev() *ThreadIDNodeDL {
	return n.prev
}

// ThreadIDListDL implements a doubly linked list that is not safe for
// concurrent use. The zero value is an empty list.
type ThreadIDListDL struct {
	head, tail *ThreadIDNodeDL
	size       int
}

// Empty returns true if the list contains no nodes.
func (l *ThreadIDListDL) Empty() bool {
	return l.head == nil
}

// Len returns the number of nodes in the list.
func (l *ThreadIDListDL) Len() int {
	return l.size
}

// First returns the first node in the list, or nil if the list is empty.
func (l *ThreadIDListDL) First() *ThreadIDNodeDL {
	return l.head
}

// Last returns the last node in the list, or nil if the list is empty.
func (l *ThreadIDListDL) Last() *ThreadIDNodeDL {
	return l.tail
}

// PushNode inserts n at the front of the list. It panics if n still carries
// links to another list.
func (l *ThreadIDListDL) PushNode(n *ThreadIDNodeDL) {
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
func (l *ThreadIDListDL) AppendNode(n *ThreadIDNodeDL) {
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
func (l *ThreadIDListDL) RemoveNode(n *ThreadIDNodeDL) {
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
func (l *ThreadIDListDL) PopNode() *ThreadIDNodeDL {
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
func (l *ThreadIDListDL) TraverseNodes(fn func(n *ThreadIDNodeDL) error) error {
	for n := l.head; n != nil; n = n.next {
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// ThreadIDNodePool hands out list nodes from an arena allocated once at pool
// construction so that steady-state list operations perform no allocation.
type ThreadIDNodePool struct {
	nodes []ThreadIDNodeDL
	free  *ThreadIDNodeDL
}

// NewThreadIDNodePool returns a pool holding capacity nodes.
func NewThreadIDNodePool(capacity int) *ThreadIDNodePool {
	pool := &ThreadIDNodePool{nodes: make([]ThreadIDNodeDL, capacity)}
	for i := capacity - 1; i >= 0; i-- {
		pool.nodes[i].next = pool.free
		pool.free = &pool.nodes[i]
	}
	return pool
}

// Get returns an unlinked node from the pool, or nil if the pool is
// exhausted.
func (p *ThreadIDNodePool) Get() *ThreadIDNodeDL {
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
func (p *ThreadIDNodePool) Put(n *ThreadIDNodeDL) {
	if n.prev != nil || n.next != nil {
		panic("list node is still linked")
	}

	n.next = p.free
	p.free = n
}
