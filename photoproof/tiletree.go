package photoproof

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"runtime"
	"sync"
)

// DefaultTileSize is the unit of content-addressing. A typical multi-megabyte
// capture yields on the order of a thousand tiles, so a single mismatching
// tile localizes tampering to a 4 KiB region.
const DefaultTileSize = 4096

// parallelLeafThreshold is the tile count above which leaf hashing fans out
// across workers. Reassembly is by tile index, so the tree is identical to a
// sequential build.
const parallelLeafThreshold = 256

// tileLeaf and tileNode hashes use domain separation so a leaf can never
// collide with an internal node. The leaf hash covers the tile's true length,
// so a short final tile is distinguishable from one padded to full size.
func tileLeaf(tile []byte) []byte {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(tile)))
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(length[:])
	h.Write(tile)
	return h.Sum(nil)
}

func tileNode(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// tileRoot finalizes the tree by binding the covered byte length into the
// root. Internal levels duplicate an odd trailing node, so without this an
// image extended with a copy of its final tile would rebuild to the same top
// node; the length prefix makes the root unique per byte sequence.
func tileRoot(length int, top []byte) []byte {
	var l [8]byte
	binary.BigEndian.PutUint64(l[:], uint64(length))
	h := sha256.New()
	h.Write([]byte{0x02})
	h.Write(l[:])
	h.Write(top)
	return h.Sum(nil)
}

// TileHashTree is a binary hash tree over the ordered fixed-size tiles of a
// frozen image. The root is a deterministic function of tile contents, tile
// order, and total byte length; it is the image's content fingerprint.
type TileHashTree struct {
	tileSize int
	length   int
	leaves   [][]byte
	root     []byte
}

// BuildTileTree partitions a frozen image into tiles of tileSize and builds
// the hash tree bottom-up. It is a pure function: the same image and tile
// size always yield the same tree.
func BuildTileTree(img *FrozenImage, tileSize int) (*TileHashTree, error) {
	if img == nil {
		return nil, errors.New("nil frozen image")
	}
	return BuildTileTreeBytes(img.data, tileSize)
}

// BuildTileTreeBytes builds the tree over an already-transmitted byte
// sequence. Verification uses this form so the recomputation operates on the
// exact bytes received, not on any re-decoded representation.
func BuildTileTreeBytes(data []byte, tileSize int) (*TileHashTree, error) {
	if tileSize <= 0 {
		return nil, errors.New("tile size must be positive")
	}
	leaves := buildLeaves(data, tileSize)

	level := leaves
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, tileNode(left, right))
		}
		level = next
	}

	return &TileHashTree{
		tileSize: tileSize,
		length:   len(data),
		leaves:   leaves,
		root:     tileRoot(len(data), level[0]),
	}, nil
}

// buildLeaves hashes every tile in order. An empty input still produces one
// empty tile so every byte sequence has a root.
func buildLeaves(data []byte, tileSize int) [][]byte {
	count := (len(data) + tileSize - 1) / tileSize
	if count == 0 {
		count = 1
	}
	leaves := make([][]byte, count)

	hashRange := func(from, to int) {
		for i := from; i < to; i++ {
			start := i * tileSize
			end := start + tileSize
			if end > len(data) {
				end = len(data)
			}
			leaves[i] = tileLeaf(data[start:end])
		}
	}

	if count < parallelLeafThreshold {
		hashRange(0, count)
		return leaves
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > count {
		workers = count
	}
	chunk := (count + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		from := w * chunk
		to := from + chunk
		if to > count {
			to = count
		}
		if from >= to {
			break
		}
		wg.Add(1)
		go func(from, to int) {
			defer wg.Done()
			hashRange(from, to)
		}(from, to)
	}
	wg.Wait()
	return leaves
}

// Root returns a copy of the root hash.
func (t *TileHashTree) Root() []byte {
	out := make([]byte, len(t.root))
	copy(out, t.root)
	return out
}

// TileCount returns the number of tiles the image was partitioned into.
func (t *TileHashTree) TileCount() int { return len(t.leaves) }

// TileSize returns the tile size the tree was built with.
func (t *TileHashTree) TileSize() int { return t.tileSize }

// Length returns the byte length the tree covers.
func (t *TileHashTree) Length() int { return t.length }

// TileHash returns a copy of the leaf hash for tile i.
func (t *TileHashTree) TileHash(i int) []byte {
	if i < 0 || i >= len(t.leaves) {
		return nil
	}
	out := make([]byte, len(t.leaves[i]))
	copy(out, t.leaves[i])
	return out
}

// DiffTiles reports the indices of every tile whose hash differs between two
// trees, localizing tampering instead of collapsing it into a single opaque
// mismatch. Tiles present in only one tree count as differing; trees built
// with different tile sizes are incomparable and every index is reported.
func DiffTiles(a, b *TileHashTree) []int {
	if a == nil || b == nil {
		return nil
	}
	longest := len(a.leaves)
	if len(b.leaves) > longest {
		longest = len(b.leaves)
	}
	var diff []int
	if a.tileSize != b.tileSize {
		for i := 0; i < longest; i++ {
			diff = append(diff, i)
		}
		return diff
	}
	for i := 0; i < longest; i++ {
		if i >= len(a.leaves) || i >= len(b.leaves) || !bytes.Equal(a.leaves[i], b.leaves[i]) {
			diff = append(diff, i)
		}
	}
	return diff
}
