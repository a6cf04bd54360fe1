package duplicate

import "github.com/pdxmph/imgdedup/pkg/phash"

// bkTree is a Burkhard-Keller tree over Hamming distance. Each node stores the
// position of its entry in the owning Index.
type bkTree struct {
	root *bkNode
	size int
}

type bkNode struct {
	fp       phash.Fingerprint
	pos      int
	children map[int]*bkNode
}

func (t *bkTree) insert(fp phash.Fingerprint, pos int) {
	t.size++
	n := &bkNode{fp: fp, pos: pos}
	if t.root == nil {
		t.root = n
		return
	}
	cur := t.root
	for {
		d := phash.Distance(cur.fp, fp)
		next, ok := cur.children[d]
		if !ok {
			if cur.children == nil {
				cur.children = make(map[int]*bkNode)
			}
			cur.children[d] = n
			return
		}
		cur = next
	}
}

// within calls visit for every stored fingerprint at distance <= radius from fp.
func (t *bkTree) within(fp phash.Fingerprint, radius int, visit func(pos, dist int)) {
	if t.root == nil {
		return
	}
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d := phash.Distance(n.fp, fp)
		if d <= radius {
			visit(n.pos, d)
		}
		// Triangle inequality: only children at distance d±radius can hold matches.
		for cd, child := range n.children {
			if cd >= d-radius && cd <= d+radius {
				stack = append(stack, child)
			}
		}
	}
}
