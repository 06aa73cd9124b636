package book

import (
	"github.com/google/btree"

	"github.com/outcomelab/predengine/internal/domain"
)

// indexItem keys one open order inside a side index. sortPrice is the raw
// price for sell sides and the negated price for buy sides, so that the tree
// minimum is always the best order. seq is the order id: ids are allocated in
// placement order, which makes (price, seq) reproduce exact price-time
// priority.
type indexItem struct {
	sortPrice int64
	seq       uint64
}

func lessIndexItem(a, b indexItem) bool {
	if a.sortPrice != b.sortPrice {
		return a.sortPrice < b.sortPrice
	}
	return a.seq < b.seq
}

// sideIndex is an ordered index over the open orders of one (side, outcome)
// quadrant of the book. Lookup, insert, and remove are logarithmic; the
// linear scan of the reference behavior defines only the tie-break order,
// which this index reproduces.
type sideIndex struct {
	side domain.Side
	tree *btree.BTreeG[indexItem]
}

const indexDegree = 16

func newSideIndex(side domain.Side) *sideIndex {
	return &sideIndex{
		side: side,
		tree: btree.NewG[indexItem](indexDegree, lessIndexItem),
	}
}

func (ix *sideIndex) key(priceBps int64, seq uint64) indexItem {
	sort := priceBps
	if ix.side == domain.SideBuy {
		sort = -priceBps
	}
	return indexItem{sortPrice: sort, seq: seq}
}

func (ix *sideIndex) insert(priceBps int64, seq uint64) {
	ix.tree.ReplaceOrInsert(ix.key(priceBps, seq))
}

func (ix *sideIndex) remove(priceBps int64, seq uint64) {
	ix.tree.Delete(ix.key(priceBps, seq))
}

// best returns the sequence of the best-priced, earliest-placed open order.
func (ix *sideIndex) best() (uint64, bool) {
	item, ok := ix.tree.Min()
	if !ok {
		return 0, false
	}
	return item.seq, true
}

// ascend walks the index from best to worst order.
func (ix *sideIndex) ascend(fn func(seq uint64) bool) {
	ix.tree.Ascend(func(item indexItem) bool {
		return fn(item.seq)
	})
}

func (ix *sideIndex) len() int {
	return ix.tree.Len()
}
