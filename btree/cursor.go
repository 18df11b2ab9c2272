package btree

import (
	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/page"
)

// Cursor walks a Tree's leaves in ascending key order via their sibling
// Link chain, independent of tree depth.
type Cursor[V any] struct {
	t    *Tree[V]
	leaf *page.Page
	node *node
	idx  int
}

func (t *Tree[V]) leftmostLeaf() (*page.Page, error) {
	hdr := t.store.Header()
	nr := hdr.Root
	for level := uint32(1); level < hdr.Depth; level++ {
		p, err := t.store.Get(nr)
		if err != nil {
			return nil, err
		}
		bn := loadNode(p, childValueSize, true)
		child := childCodec().decode(bn.valueBytes(0))
		t.store.Release(p)
		nr = child
	}
	return t.store.Get(nr)
}

// All returns a Cursor positioned at the tree's first entry.
func (t *Tree[V]) All() (*Cursor[V], error) {
	leaf, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	return &Cursor[V]{t: t, leaf: leaf, node: loadNode(leaf, t.codec.size, false)}, nil
}

// Range returns a Cursor positioned at the first key >= lo.
func (t *Tree[V]) Range(lo []byte) (*Cursor[V], error) {
	_, leaf, err := t.descend(lo)
	if err != nil {
		return nil, err
	}
	n := loadNode(leaf, t.codec.size, false)
	idx, _ := n.search(lo)
	return &Cursor[V]{t: t, leaf: leaf, node: n, idx: idx}, nil
}

// Next advances the cursor, reporting whether an entry was produced.
func (c *Cursor[V]) Next() ([]byte, V, bool, error) {
	var zero V
	for {
		if c.leaf == nil {
			return nil, zero, false, nil
		}
		if c.idx < len(c.node.offsets) {
			k := append([]byte(nil), c.node.key(c.idx)...)
			v := c.t.codec.decode(c.node.valueBytes(c.idx))
			c.idx++
			return k, v, true, nil
		}
		link := c.leaf.Link()
		c.t.store.Release(c.leaf)
		c.leaf = nil
		if link == 0 {
			return nil, zero, false, nil
		}
		nxt, err := c.t.store.Get(link)
		if err != nil {
			return nil, zero, false, err
		}
		c.leaf = nxt
		c.node = loadNode(nxt, c.t.codec.size, false)
		c.idx = 0
	}
}

// Close releases the cursor's currently pinned leaf, if any. Safe to call
// after Next has already exhausted the cursor.
func (c *Cursor[V]) Close() {
	if c.leaf != nil {
		c.t.store.Release(c.leaf)
		c.leaf = nil
	}
}

// FindPattern returns every key matching a shell-style glob pattern
// ('*' any run, '?' any one byte), scanning the whole tree — patterns
// aren't necessarily prefix-anchored, so there's no way to use the tree's
// ordering to narrow the scan, matching the original's own full-index
// pattern search.
func (t *Tree[V]) FindPattern(pattern string) ([]string, error) {
	cur, err := t.All()
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []string
	for {
		k, _, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if globMatch(pattern, string(k)) {
			out = append(out, string(k))
		}
	}
	return out, nil
}

// globMatch reports whether s matches pattern, where '*' matches any run
// (including empty) and '?' matches exactly one byte.
func globMatch(pattern, s string) bool {
	dp := make([][]bool, len(pattern)+1)
	for i := range dp {
		dp[i] = make([]bool, len(s)+1)
	}
	dp[0][0] = true
	for i := 1; i <= len(pattern); i++ {
		if pattern[i-1] == '*' {
			dp[i][0] = dp[i-1][0]
		}
	}
	for i := 1; i <= len(pattern); i++ {
		for j := 1; j <= len(s); j++ {
			switch pattern[i-1] {
			case '*':
				dp[i][j] = dp[i-1][j] || dp[i][j-1]
			case '?':
				dp[i][j] = dp[i-1][j-1]
			default:
				dp[i][j] = dp[i-1][j-1] && pattern[i-1] == s[j-1]
			}
		}
	}
	return dp[len(pattern)][len(s)]
}

// Validate walks the leaf chain checking that keys are in strict ascending
// order end to end, the structural invariant everything else (Find's
// sibling-link fallback, Range) depends on.
func (t *Tree[V]) Validate() error {
	cur, err := t.All()
	if err != nil {
		return err
	}
	defer cur.Close()

	var prev []byte
	first := true
	for {
		k, _, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if !first && compareKeys(prev, k) >= 0 {
			return m6.New("btree.Validate", m6.KindCorruption, "keys out of ascending order")
		}
		prev, first = k, false
	}
	return nil
}

// Vacuum rebuilds the tree by bulk-loading a fresh, densely packed set of
// pages from a full scan of the current contents, then swapping in the new
// root. Like the original, it does not reclaim the pages the old tree
// occupied — recovering deallocated pages is listed as a TODO at the top of
// M6Index.cpp, not a gap introduced here.
func (t *Tree[V]) Vacuum() error {
	cur, err := t.All()
	if err != nil {
		return err
	}
	var keys [][]byte
	var vals []V
	for {
		k, v, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	if len(keys) == 0 {
		return nil
	}

	type built struct {
		nr       uint32
		firstKey []byte
	}

	var leaves []built
	var prevLeaf *page.Page
	i := 0
	for i < len(keys) {
		p, err := t.store.Alloc()
		if err != nil {
			return err
		}
		p.SetType(t.leafType)

		var ks, vs [][]byte
		j := i
		for j < len(keys) {
			candKeys := append(append([][]byte{}, ks...), keys[j])
			vb := make([]byte, t.codec.size)
			t.codec.encode(vals[j], vb)
			candVals := append(append([][]byte{}, vs...), vb)
			tmp := loadNode(p, t.codec.size, false)
			if !tmp.rewrite(candKeys, candVals) {
				break
			}
			ks, vs = candKeys, candVals
			j++
		}
		n := loadNode(p, t.codec.size, false)
		n.rewrite(ks, vs)
		t.store.MarkDirty(p)
		if prevLeaf != nil {
			prevLeaf.SetLink(p.Nr())
			t.store.MarkDirty(prevLeaf)
		}
		leaves = append(leaves, built{nr: p.Nr(), firstKey: ks[0]})
		prevLeaf = p
		i = j
	}
	if prevLeaf != nil {
		prevLeaf.SetLink(0)
		t.store.MarkDirty(prevLeaf)
	}

	level := make([]uint32, len(leaves))
	levelKeys := make([][]byte, len(leaves))
	for idx, lf := range leaves {
		level[idx] = lf.nr
		levelKeys[idx] = lf.firstKey
	}

	depth := uint32(1)
	for len(level) > 1 {
		var nextLevel []uint32
		var nextKeys [][]byte
		idx := 0
		for idx < len(level) {
			p, err := t.store.Alloc()
			if err != nil {
				return err
			}
			p.SetType(page.TypeBranch)

			var ks, cs [][]byte
			j := idx
			for j < len(level) {
				candKeys := ks
				if j > idx {
					candKeys = append(append([][]byte{}, ks...), levelKeys[j])
				}
				cb := make([]byte, childValueSize)
				childCodec().encode(level[j], cb)
				candChildren := append(append([][]byte{}, cs...), cb)
				tmp := loadNode(p, childValueSize, true)
				if !tmp.rewrite(candKeys, candChildren) {
					break
				}
				ks, cs = candKeys, candChildren
				j++
			}
			n := loadNode(p, childValueSize, true)
			n.rewrite(ks, cs)
			t.store.MarkDirty(p)
			nextLevel = append(nextLevel, p.Nr())
			nextKeys = append(nextKeys, levelKeys[idx])
			idx = j
		}
		level, levelKeys = nextLevel, nextKeys
		depth++
	}

	t.store.SetRoot(level[0])
	t.store.SetDepth(depth)
	return nil
}
