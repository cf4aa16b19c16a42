/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package tree is a durable rooted tree keyed by K, carrying a value V
// per node (spec §4.10). Removing a node cascades to every descendant.
// Moving a node is rejected outright (ErrInvalidOperation, not a no-op)
// if it would move the root or create a cycle; it is a no-op that
// appends no log entry only when the new parent is already the current
// parent.
package tree

import (
	"fmt"

	"github.com/launix-de/durablestatemachines/durable"
	"github.com/launix-de/durablestatemachines/protocol"
)

const (
	tagClear    uint32 = 0
	tagSnapshot uint32 = 1
	tagAdd      uint32 = 2
	tagRemove   uint32 = 3
	tagMove     uint32 = 4
	tagSetRoot  uint32 = 5
)

type node[K comparable, V any] struct {
	key       K
	value     V
	parent    K
	hasParent bool
	children  []K
}

// Tree is a durable rooted tree.
type Tree[K comparable, V any] struct {
	keyCodec protocol.Codec[K]
	valCodec protocol.Codec[V]
	nodes    map[K]*node[K, V]
	root     K
	hasRoot  bool
	w        durable.LogWriter
}

// New returns an empty Tree with no root.
func New[K comparable, V any](keyCodec protocol.Codec[K], valCodec protocol.Codec[V]) *Tree[K, V] {
	return &Tree[K, V]{keyCodec: keyCodec, valCodec: valCodec, nodes: make(map[K]*node[K, V])}
}

// Reset implements durable.StateMachine.
func (t *Tree[K, V]) Reset(w durable.LogWriter) {
	t.w = w
	t.nodes = make(map[K]*node[K, V])
	t.hasRoot = false
}

// Apply implements durable.StateMachine.
func (t *Tree[K, V]) Apply(raw []byte) error {
	r := protocol.NewReader(raw)
	ver, err := r.ReadVersion()
	if err != nil {
		return err
	}
	if ver != protocol.CurrentVersion {
		return fmt.Errorf("%w: tree entry version %d", durable.ErrUnsupportedVersion, ver)
	}
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	switch tag {
	case tagClear:
		t.nodes = make(map[K]*node[K, V])
		t.hasRoot = false
	case tagSetRoot:
		k, v, err := t.decodeKV(r)
		if err != nil {
			return err
		}
		t.nodes = make(map[K]*node[K, V])
		t.nodes[k] = &node[K, V]{key: k, value: v}
		t.root, t.hasRoot = k, true
	case tagAdd:
		parent, err := t.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		k, v, err := t.decodeKV(r)
		if err != nil {
			return err
		}
		t.attach(parent, k, v)
	case tagRemove:
		k, err := t.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		t.cascadeRemove(k)
	case tagMove:
		k, newParent, err := t.decodeKeyKey(r)
		if err != nil {
			return err
		}
		t.reparent(k, newParent)
	case tagSnapshot:
		if err := t.applySnapshot(r); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: tree tag %d", durable.ErrUnsupportedCommand, tag)
	}
	return nil
}

func (t *Tree[K, V]) applySnapshot(r *protocol.Reader) error {
	t.nodes = make(map[K]*node[K, V])
	t.hasRoot = false
	hasRoot, err := r.ReadBool()
	if err != nil {
		return err
	}
	if !hasRoot {
		count, err := r.ReadUvarint()
		if err != nil {
			return err
		}
		if count != 0 {
			return fmt.Errorf("%w: tree snapshot has nodes but no root", durable.ErrInvalidArgument)
		}
		return nil
	}
	rootKey, rootVal, err := t.decodeKV(r)
	if err != nil {
		return err
	}
	t.nodes[rootKey] = &node[K, V]{key: rootKey, value: rootVal}
	t.root, t.hasRoot = rootKey, true
	count, err := r.ReadUvarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		k, v, err := t.decodeKV(r)
		if err != nil {
			return err
		}
		parent, err := t.keyCodec.Decode(r)
		if err != nil {
			return fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
		}
		t.attach(parent, k, v)
	}
	return nil
}

func (t *Tree[K, V]) decodeKV(r *protocol.Reader) (K, V, error) {
	k, err := t.keyCodec.Decode(r)
	if err != nil {
		var zk K
		var zv V
		return zk, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	v, err := t.valCodec.Decode(r)
	if err != nil {
		var zv V
		return k, zv, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	return k, v, nil
}

func (t *Tree[K, V]) decodeKeyKey(r *protocol.Reader) (K, K, error) {
	a, err := t.keyCodec.Decode(r)
	if err != nil {
		var z K
		return z, z, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	b, err := t.keyCodec.Decode(r)
	if err != nil {
		var z K
		return a, z, fmt.Errorf("%w: %v", durable.ErrCodecFailure, err)
	}
	return a, b, nil
}

func (t *Tree[K, V]) attach(parent, key K, value V) {
	t.nodes[key] = &node[K, V]{key: key, value: value, parent: parent, hasParent: true}
	if p, ok := t.nodes[parent]; ok {
		p.children = append(p.children, key)
	}
}

func (t *Tree[K, V]) cascadeRemove(key K) {
	n, ok := t.nodes[key]
	if !ok {
		return
	}
	if n.hasParent {
		if p, ok := t.nodes[n.parent]; ok {
			for i, c := range p.children {
				if c == key {
					p.children = append(p.children[:i], p.children[i+1:]...)
					break
				}
			}
		}
	}
	queue := []K{key}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cn, ok := t.nodes[cur]; ok {
			queue = append(queue, cn.children...)
			delete(t.nodes, cur)
		}
	}
}

// isDescendant reports whether candidate lies in the subtree rooted at
// ancestor, via BFS over children.
func (t *Tree[K, V]) isDescendant(ancestor, candidate K) bool {
	n, ok := t.nodes[ancestor]
	if !ok {
		return false
	}
	queue := append([]K{}, n.children...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == candidate {
			return true
		}
		if cn, ok := t.nodes[cur]; ok {
			queue = append(queue, cn.children...)
		}
	}
	return false
}

func (t *Tree[K, V]) reparent(key, newParent K) {
	n := t.nodes[key]
	if n.hasParent {
		if p, ok := t.nodes[n.parent]; ok {
			for i, c := range p.children {
				if c == key {
					p.children = append(p.children[:i], p.children[i+1:]...)
					break
				}
			}
		}
	}
	n.parent, n.hasParent = newParent, true
	t.nodes[newParent].children = append(t.nodes[newParent].children, key)
}

// AppendEntries implements durable.StateMachine; push-style, no-op.
func (t *Tree[K, V]) AppendEntries(durable.LogWriter) error { return nil }

// bfsOrder returns every non-root node in an order where each node
// follows its parent.
func (t *Tree[K, V]) bfsOrder() []K {
	if !t.hasRoot {
		return nil
	}
	var order []K
	queue := append([]K{}, t.nodes[t.root].children...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		if cn, ok := t.nodes[cur]; ok {
			queue = append(queue, cn.children...)
		}
	}
	return order
}

// AppendSnapshot implements durable.StateMachine: hasRoot flag, then (if
// true) the root's (key, value), a count, and BFS-ordered
// (key, value, parentKey) triples so a parent always precedes its
// children in the stream.
func (t *Tree[K, V]) AppendSnapshot(w durable.LogWriter) error {
	hasRoot := t.hasRoot
	var rootKey K
	var rootVal V
	if hasRoot {
		rootKey = t.root
		rootVal = t.nodes[t.root].value
	}
	order := t.bfsOrder()
	type rec struct {
		key, parent K
		value       V
	}
	recs := make([]rec, len(order))
	for i, k := range order {
		n := t.nodes[k]
		recs[i] = rec{key: k, parent: n.parent, value: n.value}
	}
	keyCodec, valCodec := t.keyCodec, t.valCodec
	return w.Append(func() []byte {
		wr := protocol.NewWriter(tagSnapshot)
		wr.WriteBool(hasRoot)
		if hasRoot {
			keyCodec.Encode(wr, rootKey)
			valCodec.Encode(wr, rootVal)
		}
		wr.WriteUvarint(uint64(len(recs)))
		for _, rc := range recs {
			keyCodec.Encode(wr, rc.key)
			valCodec.Encode(wr, rc.value)
			keyCodec.Encode(wr, rc.parent)
		}
		return wr.Bytes()
	})
}

// SetRoot creates the tree's root node. It fails if the tree is
// already non-empty (spec §4.10, §7). Remove cannot take out the root,
// so once a root is set no public method empties the tree again.
func (t *Tree[K, V]) SetRoot(key K, value V) error {
	if t.hasRoot || len(t.nodes) != 0 {
		return fmt.Errorf("%w: set_root on non-empty tree", durable.ErrInvalidOperation)
	}
	t.nodes = make(map[K]*node[K, V])
	t.nodes[key] = &node[K, V]{key: key, value: value}
	t.root, t.hasRoot = key, true
	keyCodec, valCodec := t.keyCodec, t.valCodec
	return t.w.Append(func() []byte {
		wr := protocol.NewWriter(tagSetRoot)
		keyCodec.Encode(wr, key)
		valCodec.Encode(wr, value)
		return wr.Bytes()
	})
}

// Add attaches a new node key/value under parent, which must already
// exist.
func (t *Tree[K, V]) Add(parent, key K, value V) error {
	if _, ok := t.nodes[parent]; !ok {
		return fmt.Errorf("%w: tree parent %v does not exist", durable.ErrInvalidArgument, parent)
	}
	if _, ok := t.nodes[key]; ok {
		return fmt.Errorf("%w: tree node %v already exists", durable.ErrInvalidOperation, key)
	}
	t.attach(parent, key, value)
	keyCodec, valCodec := t.keyCodec, t.valCodec
	return t.w.Append(func() []byte {
		wr := protocol.NewWriter(tagAdd)
		keyCodec.Encode(wr, parent)
		keyCodec.Encode(wr, key)
		valCodec.Encode(wr, value)
		return wr.Bytes()
	})
}

// Remove deletes key and every descendant. key may not be the root:
// removing it fails with ErrInvalidOperation. A missing key is a no-op.
func (t *Tree[K, V]) Remove(key K) error {
	if _, ok := t.nodes[key]; !ok {
		return nil
	}
	if t.hasRoot && key == t.root {
		return fmt.Errorf("%w: cannot remove the tree root, use SetRoot", durable.ErrInvalidOperation)
	}
	t.cascadeRemove(key)
	keyCodec := t.keyCodec
	return t.w.Append(func() []byte {
		wr := protocol.NewWriter(tagRemove)
		keyCodec.Encode(wr, key)
		return wr.Bytes()
	})
}

// Move reparents key under newParent. It returns false with no error
// and no log entry if newParent is already key's current parent. It
// fails outright with ErrInvalidOperation (not a no-op) if key is the
// root, or if moving key would create a cycle (newParent is key itself
// or one of its own descendants).
func (t *Tree[K, V]) Move(key, newParent K) (bool, error) {
	n, ok := t.nodes[key]
	if !ok {
		return false, fmt.Errorf("%w: tree node %v does not exist", durable.ErrInvalidArgument, key)
	}
	if t.hasRoot && key == t.root {
		return false, fmt.Errorf("%w: cannot move the tree root", durable.ErrInvalidOperation)
	}
	if _, ok := t.nodes[newParent]; !ok {
		return false, fmt.Errorf("%w: tree parent %v does not exist", durable.ErrInvalidArgument, newParent)
	}
	if newParent == key || t.isDescendant(key, newParent) {
		return false, fmt.Errorf("%w: moving %v under %v would create a cycle", durable.ErrInvalidOperation, key, newParent)
	}
	if n.hasParent && n.parent == newParent {
		return false, nil
	}
	t.reparent(key, newParent)
	keyCodec := t.keyCodec
	if err := t.w.Append(func() []byte {
		wr := protocol.NewWriter(tagMove)
		keyCodec.Encode(wr, key)
		keyCodec.Encode(wr, newParent)
		return wr.Bytes()
	}); err != nil {
		return true, err
	}
	return true, nil
}

// Contains reports whether key exists.
func (t *Tree[K, V]) Contains(key K) bool {
	_, ok := t.nodes[key]
	return ok
}

// Get returns key's value.
func (t *Tree[K, V]) Get(key K) (V, bool) {
	n, ok := t.nodes[key]
	if !ok {
		var z V
		return z, false
	}
	return n.value, true
}

// Children returns a copy of key's direct children.
func (t *Tree[K, V]) Children(key K) []K {
	n, ok := t.nodes[key]
	if !ok {
		return nil
	}
	return append([]K{}, n.children...)
}

// Parent returns key's parent, or ok=false if key is the root or
// absent.
func (t *Tree[K, V]) Parent(key K) (K, bool) {
	n, ok := t.nodes[key]
	if !ok || !n.hasParent {
		var z K
		return z, false
	}
	return n.parent, true
}

// Root returns the root key, or ok=false if the tree has no root.
func (t *Tree[K, V]) Root() (K, bool) {
	if !t.hasRoot {
		var z K
		return z, false
	}
	return t.root, true
}

// Count returns the total number of nodes, including the root.
func (t *Tree[K, V]) Count() int { return len(t.nodes) }
