package cluster

// unionFind is a disjoint-set forest with union by rank and path halving,
// amortized near-linear in the number of union/find operations.
type unionFind struct {
	parent []uint32
	rank   []uint8
}

func newUnionFind() *unionFind {
	return &unionFind{}
}

// grow ensures indices up to n-1 exist, each its own set initially.
func (u *unionFind) grow(n int) {
	for len(u.parent) < n {
		u.parent = append(u.parent, uint32(len(u.parent)))
		u.rank = append(u.rank, 0)
	}
}

func (u *unionFind) find(x uint32) uint32 {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b uint32) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
