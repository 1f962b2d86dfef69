package pgmux

import "testing"

func TestPartition(t *testing.T) {
	cases := []struct {
		max, w        int
		local, worker int
	}{
		{max: 10, w: 0, local: 10, worker: 0},
		{max: 10, w: 4, local: 2, worker: 2},
		{max: 10, w: 9, local: 1, worker: 1},
		{max: 3, w: 4, local: 1, worker: 1},
		{max: 1, w: 1, local: 1, worker: 1},
		{max: 100, w: 3, local: 25, worker: 25},
	}

	for _, c := range cases {
		local, worker := partition(c.max, c.w)
		if local != c.local || worker != c.worker {
			t.Errorf("partition(%d, %d) = (%d, %d), want (%d, %d)", c.max, c.w, local, worker, c.local, c.worker)
		}
	}
}
