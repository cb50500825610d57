/*Package comm implements the process-group model of the matrix-element
engine: a fixed set of cooperating workers ("ranks", one goroutine each)
that communicate only through blocking collective operations, never through
shared mutable state. Groups can be split MPI-style into pools.

All reductions combine contributions in ascending rank order, so for a
fixed worker count every collective is deterministic and a whole run is
bitwise reproducible.*/
package comm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAborted is returned by every collective on all ranks once some rank
// called Abort. Only the aborting rank holds the original error; the others
// are expected to just unwind.
var ErrAborted = errors.New("comm: group aborted")

// group holds the shared state of one communicator. It is private: ranks
// interact with it only through their own *Comm handle.
type group struct {
	size    int
	mu      sync.Mutex
	cond    *sync.Cond
	bufs    []interface{}
	count   int
	gen     int
	result  interface{}
	aborted bool
}

func newGroup(size int) *group {
	g := &group{size: size, bufs: make([]interface{}, size)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Comm is one rank's handle into a group. A Comm must only be used from the
// goroutine it was handed to.
type Comm struct {
	g    *group
	rank int
}

// NewWorld returns the handles of a new size-rank world communicator.
func NewWorld(size int) []*Comm {
	if size < 1 {
		panic("comm: world size must be positive")
	}
	g := newGroup(size)
	cs := make([]*Comm, size)
	for i := range cs {
		cs[i] = &Comm{g: g, rank: i}
	}
	return cs
}

// Rank returns the caller's rank within the group, starting from 0.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of ranks in the group.
func (c *Comm) Size() int { return c.g.size }

// Root returns whether the caller is rank 0 of the group.
func (c *Comm) Root() bool { return c.rank == 0 }

// Abort marks the group as failed and wakes every rank blocked in a
// collective. It is idempotent.
func (c *Comm) Abort() {
	g := c.g
	g.mu.Lock()
	g.aborted = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// round is the single synchronization primitive: every rank contributes in,
// the last rank to arrive runs combine over the contributions (indexed by
// rank) and the result is handed to everyone. Collectives must be issued in
// the same order by all ranks of a group.
func (c *Comm) round(in interface{}, combine func([]interface{}) interface{}) (interface{}, error) {
	g := c.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted {
		return nil, ErrAborted
	}
	mygen := g.gen
	g.bufs[c.rank] = in
	g.count++
	if g.count == g.size {
		g.result = combine(g.bufs)
		for i := range g.bufs {
			g.bufs[i] = nil
		}
		g.count = 0
		g.gen++
		g.cond.Broadcast()
		return g.result, nil
	}
	for g.gen == mygen && !g.aborted {
		g.cond.Wait()
	}
	if g.aborted {
		return nil, ErrAborted
	}
	return g.result, nil
}

// Barrier blocks until every rank of the group reached it.
func (c *Comm) Barrier() error {
	_, err := c.round(nil, func([]interface{}) interface{} { return nil })
	return err
}

func pickRoot(root int) func([]interface{}) interface{} {
	return func(bufs []interface{}) interface{} { return bufs[root] }
}

// BcastInt distributes v, as held by root, to every rank.
func (c *Comm) BcastInt(v int, root int) (int, error) {
	r, err := c.round(v, pickRoot(root))
	if err != nil {
		return 0, err
	}
	return r.(int), nil
}

// BcastBool distributes v, as held by root, to every rank.
func (c *Comm) BcastBool(v bool, root int) (bool, error) {
	r, err := c.round(v, pickRoot(root))
	if err != nil {
		return false, err
	}
	return r.(bool), nil
}

// BcastFloat64 distributes v, as held by root, to every rank.
func (c *Comm) BcastFloat64(v float64, root int) (float64, error) {
	r, err := c.round(v, pickRoot(root))
	if err != nil {
		return 0, err
	}
	return r.(float64), nil
}

// BcastComplex distributes v, as held by root, to every rank.
func (c *Comm) BcastComplex(v complex128, root int) (complex128, error) {
	r, err := c.round(v, pickRoot(root))
	if err != nil {
		return 0, err
	}
	return r.(complex128), nil
}

// BcastComplexSlice copies root's x into every rank's x. The slices must
// have the same length on all ranks.
func (c *Comm) BcastComplexSlice(x []complex128, root int) error {
	r, err := c.round(x, pickRoot(root))
	if err != nil {
		return err
	}
	src := r.([]complex128)
	if len(src) != len(x) {
		return fmt.Errorf("comm: BcastComplexSlice: length mismatch, %d vs %d", len(x), len(src))
	}
	if c.rank != root {
		copy(x, src)
	}
	return nil
}

// AllReduceComplex returns the sum of v over all ranks, accumulated in
// ascending rank order.
func (c *Comm) AllReduceComplex(v complex128) (complex128, error) {
	r, err := c.round(v, func(bufs []interface{}) interface{} {
		var s complex128
		for _, b := range bufs {
			s += b.(complex128)
		}
		return s
	})
	if err != nil {
		return 0, err
	}
	return r.(complex128), nil
}

// AllReduceComplexSlice replaces every rank's x with the elementwise sum of
// all contributions, accumulated in ascending rank order. The slices must
// have the same length on all ranks.
func (c *Comm) AllReduceComplexSlice(x []complex128) error {
	r, err := c.round(x, func(bufs []interface{}) interface{} {
		sum := make([]complex128, len(bufs[0].([]complex128)))
		for _, b := range bufs {
			for i, v := range b.([]complex128) {
				sum[i] += v
			}
		}
		return sum
	})
	if err != nil {
		return err
	}
	src := r.([]complex128)
	if len(src) != len(x) {
		return fmt.Errorf("comm: AllReduceComplexSlice: length mismatch, %d vs %d", len(x), len(src))
	}
	copy(x, src)
	return nil
}

// AllReduceInt returns the sum of v over all ranks.
func (c *Comm) AllReduceInt(v int) (int, error) {
	r, err := c.round(v, func(bufs []interface{}) interface{} {
		s := 0
		for _, b := range bufs {
			s += b.(int)
		}
		return s
	})
	if err != nil {
		return 0, err
	}
	return r.(int), nil
}

// ScatterComplexSlice hands segment rank of segs, as held by root, to every
// rank, copying it into dst. dst must have the length of the corresponding
// segment. On non-root ranks segs is ignored and may be nil.
func (c *Comm) ScatterComplexSlice(segs [][]complex128, root int, dst []complex128) error {
	r, err := c.round(segs, pickRoot(root))
	if err != nil {
		return err
	}
	all := r.([][]complex128)
	if len(all) != c.g.size {
		return fmt.Errorf("comm: ScatterComplexSlice: root provided %d segments for %d ranks", len(all), c.g.size)
	}
	seg := all[c.rank]
	if len(seg) != len(dst) {
		return fmt.Errorf("comm: ScatterComplexSlice: segment length %d, destination %d", len(seg), len(dst))
	}
	copy(dst, seg)
	return nil
}

type splitSlot struct {
	color int
	key   int
}

type splitPlace struct {
	g    *group
	rank int
}

// Split partitions the group into disjoint subgroups, one per distinct
// color, as MPI_Comm_split does. Within a subgroup ranks are ordered by
// key, ties broken by the parent rank.
func (c *Comm) Split(color, key int) (*Comm, error) {
	r, err := c.round(splitSlot{color, key}, func(bufs []interface{}) interface{} {
		byColor := make(map[int][]int) //color -> parent ranks
		for rank, b := range bufs {
			s := b.(splitSlot)
			byColor[s.color] = append(byColor[s.color], rank)
		}
		places := make([]splitPlace, len(bufs))
		for _, members := range byColor {
			//sort members by (key, parent rank); insertion sort, the groups are small
			for i := 1; i < len(members); i++ {
				for j := i; j > 0; j-- {
					kj := bufs[members[j]].(splitSlot).key
					kp := bufs[members[j-1]].(splitSlot).key
					if kj < kp || (kj == kp && members[j] < members[j-1]) {
						members[j], members[j-1] = members[j-1], members[j]
					}
				}
			}
			g := newGroup(len(members))
			for newRank, parent := range members {
				places[parent] = splitPlace{g, newRank}
			}
		}
		return places
	})
	if err != nil {
		return nil, err
	}
	p := r.([]splitPlace)[c.rank]
	return &Comm{g: p.g, rank: p.rank}, nil
}

// Run starts size ranks, each executing body with its own world handle, and
// waits for all of them. If any rank fails, the whole group is aborted so
// that no rank deadlocks in a collective, and the first real (non-abort)
// error is returned.
func Run(size int, body func(c *Comm) error) error {
	world := NewWorld(size)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var first error
	for _, c := range world {
		wg.Add(1)
		go func(c *Comm) {
			defer wg.Done()
			if err := body(c); err != nil {
				mu.Lock()
				if first == nil && !errors.Is(err, ErrAborted) {
					first = err
				}
				mu.Unlock()
				c.Abort()
			}
		}(c)
	}
	wg.Wait()
	if first != nil {
		return first
	}
	//every rank may have unwound with ErrAborted only; report that then
	world[0].g.mu.Lock()
	aborted := world[0].g.aborted
	world[0].g.mu.Unlock()
	if aborted {
		return ErrAborted
	}
	return nil
}
