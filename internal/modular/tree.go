package modular

import (
	"fmt"

	"github.com/mrjoshuak/go-jpegxl/internal/bio"
	"github.com/mrjoshuak/go-jpegxl/internal/entropy"
	"github.com/mrjoshuak/go-jpegxl/internal/jxlerr"
)

// MaxTreeNodes bounds the size of any MA tree.
const MaxTreeNodes = 1 << 22

// Tree contexts.
const (
	ctxSplitVal = iota
	ctxProperty
	ctxPredictor
	ctxOffset
	ctxMulLog
	ctxMulBits
	numTreeContexts
)

// numStaticProperties is the number of properties that do not refer to
// previous channels.
const numStaticProperties = 16

// propWPMaxError is the weighted predictor error property.
const propWPMaxError = 15

// treeNode is a split (property >= 0) or a leaf (property < 0).
type treeNode struct {
	property   int
	splitVal   int32
	left       int
	right      int
	predictor  Predictor
	offset     int64
	multiplier int64
	context    int
}

// Tree is a meta-adaptive context tree together with the entropy code of
// the samples it classifies.
type Tree struct {
	nodes     []treeNode
	numLeaves int
	maxProp   int
	usesWP    bool
	code      *entropy.Stream
}

// ReadTree reads an MA tree of at most limit nodes followed by the
// distributions of its leaves.
func ReadTree(r *bio.Reader, limit int) (*Tree, error) {
	limit = min(limit, MaxTreeNodes)
	ts, err := entropy.NewStream(r, numTreeContexts)
	if err != nil {
		return nil, fmt.Errorf("tree code: %w", err)
	}
	t := &Tree{maxProp: -1}
	read := func(ctx int) (uint32, error) { return ts.ReadSymbol(r, ctx) }

	for toDecode := 1; toDecode > 0; {
		if len(t.nodes) > limit {
			return nil, jxlerr.Malformed("tree size", len(t.nodes))
		}
		toDecode--
		prop, err := read(ctxProperty)
		if err != nil {
			return nil, err
		}
		if prop > 255 {
			return nil, jxlerr.Malformed("tree property", prop)
		}
		if prop == 0 {
			leaf, err := t.readLeaf(read)
			if err != nil {
				return nil, err
			}
			t.nodes = append(t.nodes, leaf)
			continue
		}
		sv, err := read(ctxSplitVal)
		if err != nil {
			return nil, err
		}
		n := len(t.nodes)
		t.nodes = append(t.nodes, treeNode{
			property: int(prop) - 1,
			splitVal: bio.UnpackSigned(sv),
			left:     n + toDecode + 1,
			right:    n + toDecode + 2,
		})
		t.maxProp = max(t.maxProp, int(prop)-1)
		if int(prop)-1 == propWPMaxError {
			t.usesWP = true
		}
		toDecode += 2
	}
	if err := ts.ValidateFinalState(r); err != nil {
		return nil, fmt.Errorf("tree code: %w", err)
	}

	if t.code, err = entropy.NewStream(r, t.numLeaves); err != nil {
		return nil, fmt.Errorf("tree leaf code: %w", err)
	}
	return t, nil
}

func (t *Tree) readLeaf(read func(int) (uint32, error)) (treeNode, error) {
	pred, err := read(ctxPredictor)
	if err != nil {
		return treeNode{}, err
	}
	if pred >= NumPredictors {
		return treeNode{}, jxlerr.Malformed("leaf predictor", pred)
	}
	off, err := read(ctxOffset)
	if err != nil {
		return treeNode{}, err
	}
	mulLog, err := read(ctxMulLog)
	if err != nil {
		return treeNode{}, err
	}
	if mulLog > 30 {
		return treeNode{}, jxlerr.Malformed("leaf multiplier log", mulLog)
	}
	mulBits, err := read(ctxMulBits)
	if err != nil {
		return treeNode{}, err
	}
	if uint64(mulBits) >= 1<<(31-mulLog)-1 {
		return treeNode{}, jxlerr.Malformed("leaf multiplier bits", mulBits)
	}
	if Predictor(pred) == PredictWeighted {
		t.usesWP = true
	}
	leaf := treeNode{
		property:   -1,
		predictor:  Predictor(pred),
		offset:     int64(bio.UnpackSigned(off)),
		multiplier: int64(mulBits+1) << mulLog,
		context:    t.numLeaves,
	}
	t.numLeaves++
	return leaf, nil
}

// NumLeaves returns the number of leaves, which is also the number of
// contexts of the sample code.
func (t *Tree) NumLeaves() int { return t.numLeaves }

// numProperties returns the length of the property vector the tree reads.
func (t *Tree) numProperties() int {
	return max(numStaticProperties, t.maxProp+1)
}

// leaf walks the tree for the given properties.
func (t *Tree) leaf(props []int32) *treeNode {
	n := &t.nodes[0]
	for n.property >= 0 {
		if props[n.property] > n.splitVal {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return n
}

// singleLeaf reports whether the tree has no splits.
func (t *Tree) singleLeaf() bool { return len(t.nodes) == 1 }
