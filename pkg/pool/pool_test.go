package pool

import "testing"

func TestVectorPool_GetReturnsZeroedVector(t *testing.T) {
	vp := NewVectorPool()
	vec := vp.Get(4)
	if len(vec) != 4 {
		t.Fatalf("Get(4) len = %d, want 4", len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Errorf("vec[%d] = %v, want 0", i, v)
		}
	}
}

func TestVectorPool_PutThenGetReusesAndZeroes(t *testing.T) {
	vp := NewVectorPool()
	vec := vp.Get(3)
	vec[0], vec[1], vec[2] = 1, 2, 3
	vp.Put(vec)

	reused := vp.Get(3)
	for i, v := range reused {
		if v != 0 {
			t.Errorf("reused[%d] = %v, want zeroed on reuse", i, v)
		}
	}
}

func TestVectorPool_DistinctDimensionsDoNotCollide(t *testing.T) {
	vp := NewVectorPool()
	a := vp.Get(2)
	b := vp.Get(5)
	if len(a) != 2 || len(b) != 5 {
		t.Fatalf("Get() returned wrong-sized vectors: len(a)=%d len(b)=%d", len(a), len(b))
	}
}

func TestBufferPool_GetReturnsAtLeastRequestedSize(t *testing.T) {
	bp := NewBufferPool()
	for _, size := range []int{10, 8*1024 + 1, 128 * 1024, 2 * 1024 * 1024} {
		buf := bp.Get(size)
		if len(buf) != size {
			t.Errorf("Get(%d) len = %d, want %d", size, len(buf), size)
		}
	}
}

func TestBufferPool_PutThenGetReuses(t *testing.T) {
	bp := NewBufferPool()
	buf := bp.Get(100)
	buf[0] = 0xFF
	bp.Put(buf)

	reused := bp.Get(100)
	if len(reused) != 100 {
		t.Fatalf("Get(100) after Put len = %d, want 100", len(reused))
	}
}
