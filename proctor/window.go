package proctor

// BinaryHistory is a fixed-capacity ring of booleans; the oldest sample is
// evicted once full.
type BinaryHistory struct {
	buf   []bool
	next  int
	size  int
	count int // number of true samples currently held
}

func NewBinaryHistory(capacity int) *BinaryHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &BinaryHistory{buf: make([]bool, capacity)}
}

func (h *BinaryHistory) Push(v bool) {
	if h.size == len(h.buf) {
		if h.buf[h.next] {
			h.count--
		}
	} else {
		h.size++
	}
	h.buf[h.next] = v
	if v {
		h.count++
	}
	h.next = (h.next + 1) % len(h.buf)
}

func (h *BinaryHistory) Len() int      { return h.size }
func (h *BinaryHistory) Cap() int      { return len(h.buf) }
func (h *BinaryHistory) CountTrue() int { return h.count }

// Values returns the samples oldest first.
func (h *BinaryHistory) Values() []bool {
	out := make([]bool, 0, h.size)
	start := (h.next - h.size + len(h.buf)) % len(h.buf)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

func (h *BinaryHistory) Reset() {
	for i := range h.buf {
		h.buf[i] = false
	}
	h.next, h.size, h.count = 0, 0, 0
}

// SmoothingWindow stabilises the lip and audio signals over the last W cycles.
type SmoothingWindow struct {
	lip   *BinaryHistory
	audio *BinaryHistory
	ratio float64
}

func NewSmoothingWindow(size int, ratio float64) *SmoothingWindow {
	return &SmoothingWindow{
		lip:   NewBinaryHistory(size),
		audio: NewBinaryHistory(size),
		ratio: ratio,
	}
}

// Push appends one cycle's readings and returns the stabilised states.
func (w *SmoothingWindow) Push(lipOpen, audioActive bool) (lipsTalking, audioTalking bool) {
	w.lip.Push(lipOpen)
	w.audio.Push(audioActive)
	return w.talking(w.lip), w.talking(w.audio)
}

// Talking returns the stabilised states without appending.
func (w *SmoothingWindow) Talking() (lipsTalking, audioTalking bool) {
	return w.talking(w.lip), w.talking(w.audio)
}

// The bound is taken against capacity, so a partly filled window needs the
// same absolute number of positives as a full one.
func (w *SmoothingWindow) talking(h *BinaryHistory) bool {
	return float64(h.CountTrue()) > float64(h.Cap())*w.ratio
}
