// Package consistenthash maps cache keys onto server nodes so that small
// membership changes move only a small share of the keyspace.
package consistenthash

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cachewire/memcached/utils"
)

const (
	// defaultPointsPerNode is how many ring positions a node with weight 1
	// occupies. Each md5 digest yields four points, so a node costs
	// defaultPointsPerNode/4 digests to place.
	defaultPointsPerNode = 160

	pointsPerDigest = 4
)

var _ ConsistentHash = (*HashRing)(nil)

type (
	// ConsistentHash selects a node for a key over the current live-node view.
	ConsistentHash interface {
		Add(node any)
		AddWithWeight(node any, weight int)
		Get(v any) (any, bool)
		GetAllNodes() []any
		Remove(node any)
		GetNodesCount() int
	}

	// Func defines the key hash method.
	Func func(data []byte) uint32

	vpoint struct {
		hash uint32
		repr string
		node any
	}

	ringNode struct {
		node   any
		weight int
	}

	// A HashRing is a ketama-style consistent hash: every node contributes
	// 160 virtual points per weight unit, derived from md5 of the node
	// representation, and keys land on the first point at or after their
	// hash, wrapping at the top of the ring.
	HashRing struct {
		hashFunc Func
		points   int

		lock  sync.RWMutex
		ring  []vpoint
		nodes map[string]ringNode
	}
)

// NewHashRing returns a HashRing with the default points count and FNV-1a
// key hashing.
func NewHashRing() *HashRing {
	return NewCustomHashRing(defaultPointsPerNode, FNV1a)
}

// NewCustomHashRing returns a HashRing with given points per node and key
// hash func. Points are rounded up to a multiple of four since every md5
// digest is split into four ring positions.
func NewCustomHashRing(points int, fn Func) *HashRing {
	if points < pointsPerDigest {
		points = defaultPointsPerNode
	}
	if rem := points % pointsPerDigest; rem != 0 {
		points += pointsPerDigest - rem
	}

	if fn == nil {
		fn = FNV1a
	}

	return &HashRing{
		hashFunc: fn,
		points:   points,
		nodes:    make(map[string]ringNode),
	}
}

// Add adds the node with weight 1, the later call overwrites the former.
func (h *HashRing) Add(node any) {
	h.AddWithWeight(node, 1)
}

// AddWithWeight adds the node with the given weight; a node with weight w
// occupies w times the default number of ring points. Weights below 1 are
// treated as 1.
func (h *HashRing) AddWithWeight(node any, weight int) {
	if weight < 1 {
		weight = 1
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	h.nodes[repr(node)] = ringNode{node: node, weight: weight}
	h.rebuild()
}

// Remove removes the given node and only that node's points from the ring.
func (h *HashRing) Remove(node any) {
	nodeRepr := repr(node)

	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.nodes[nodeRepr]; !ok {
		return
	}

	delete(h.nodes, nodeRepr)
	h.rebuild()
}

// Get returns the node owning the ring segment the hashed key falls into.
func (h *HashRing) Get(v any) (any, bool) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	if len(h.ring) == 0 {
		return nil, false
	}

	hash := h.hashFunc([]byte(repr(v)))
	index := sort.Search(len(h.ring), func(i int) bool {
		return h.ring[i].hash >= hash
	}) % len(h.ring)

	return h.ring[index].node, true
}

// GetAllNodes returns all nodes used in hash ring.
func (h *HashRing) GetAllNodes() []any {
	h.lock.RLock()
	defer h.lock.RUnlock()

	allNodes := make([]any, 0, len(h.nodes))
	for _, rn := range h.nodes {
		allNodes = append(allNodes, rn.node)
	}

	return allNodes
}

// GetNodesCount returns the current number of nodes.
func (h *HashRing) GetNodesCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.nodes)
}

// rebuild regenerates every ring point from the node set. Points depend only
// on node representations and weights, so any insertion order yields the
// same ring. Callers must hold the write lock.
func (h *HashRing) rebuild() {
	var total int
	for _, rn := range h.nodes {
		total += h.points * rn.weight
	}

	ring := make([]vpoint, 0, total)
	for nodeRepr, rn := range h.nodes {
		digests := h.points * rn.weight / pointsPerDigest
		for i := 0; i < digests; i++ {
			sum := md5.Sum([]byte(fmt.Sprintf("%s-%d", nodeRepr, i)))
			for j := 0; j < pointsPerDigest; j++ {
				ring = append(ring, vpoint{
					hash: binary.LittleEndian.Uint32(sum[j*4:]),
					repr: nodeRepr,
					node: rn.node,
				})
			}
		}
	}

	sort.Slice(ring, func(i, j int) bool {
		if ring[i].hash != ring[j].hash {
			return ring[i].hash < ring[j].hash
		}
		return ring[i].repr < ring[j].repr
	})

	h.ring = ring
}

func repr(node any) string {
	return utils.Repr(node)
}
