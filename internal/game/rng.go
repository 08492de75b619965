package game

// RNG is a deterministic splitmix64 generator whose entire state is a single
// serializable value embedded in GameState. Resolution logic must never read
// wall-clock time or unseeded randomness; drawing from this generator is the
// only source of randomness, so replaying the same seed and action log yields
// byte-identical states.
type RNG struct {
	State uint64
}

// NewRNG seeds a generator.
func NewRNG(seed uint64) RNG {
	return RNG{State: seed}
}

// Next advances the generator and returns the next 64-bit value.
func (r *RNG) Next() uint64 {
	r.State += 0x9e3779b97f4a7c15
	z := r.State
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Intn returns a value in [0, n). n must be positive.
func (r *RNG) Intn(n int) int {
	if n <= 0 {
		panic("rng: Intn with non-positive n")
	}
	return int(r.Next() % uint64(n))
}

// Shuffle permutes the slice deterministically (Fisher-Yates).
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		swap(i, j)
	}
}
