package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ratioSampler passes num out of every den calls. A zero ratio passes everything.
type ratioSampler struct {
	ratio atomic.Uint64 // num<<32 | den
	calls atomic.Uint64
}

func newRatioSampler(num, den int) *ratioSampler {
	s := &ratioSampler{}
	s.Set(num, den)
	return s
}

// Set replaces the ratio and restarts the cycle.
func (s *ratioSampler) Set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
		return
	}
	num = min(num, den)
	s.ratio.Store(uint64(num)<<32 | uint64(uint32(den)))
	s.calls.Store(0)
}

// Allow reports whether the current call falls into the sampled part of the cycle.
func (s *ratioSampler) Allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.calls.Add(1)-1)%den < num
}

// parseRatioSpec reads "n/d" or "d" (meaning 1/d). Invalid or non-positive
// input yields 0, 0.
func parseRatioSpec(spec string) (int, int) {
	spec = strings.TrimSpace(spec)
	n, d, ok := strings.Cut(spec, "/")
	if !ok {
		n, d = "1", spec
	}
	num, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil {
		return 0, 0
	}
	den, err := strconv.Atoi(strings.TrimSpace(d))
	if err != nil || num <= 0 || den <= 0 {
		return 0, 0
	}
	return num, den
}
