package primesize

import "testing"

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 16: 16, 17: 32}
	for in, want := range cases {
		if got := NextPow2(in); got != want {
			t.Errorf("NextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestFloorIsPrimeAndBounded(t *testing.T) {
	for _, n := range []int{2, 3, 4, 17, 100, 16384, 20000} {
		p := Floor(n)
		if p > n {
			t.Fatalf("Floor(%d) = %d > %d", n, p, n)
		}
		if !isPrime(p) {
			t.Fatalf("Floor(%d) = %d is not prime", n, p)
		}
	}
}

func TestDefaultCapacityBounded(t *testing.T) {
	for _, cpus := range []int{0, 1, 4, 8, 64, 1024} {
		c := DefaultCapacity(cpus)
		if c > Cap {
			t.Fatalf("DefaultCapacity(%d) = %d exceeds Cap", cpus, c)
		}
		if !isPrime(c) {
			t.Fatalf("DefaultCapacity(%d) = %d is not prime", cpus, c)
		}
	}
}
