package domain

import "fmt"

// BlockWindow is an inclusive block range [From, To].
type BlockWindow struct {
	From uint64
	To   uint64
}

// Span returns the number of blocks covered by the window.
func (w BlockWindow) Span() uint64 {
	if w.To < w.From {
		return 0
	}
	return w.To - w.From + 1
}

// Empty reports whether the window covers no blocks.
func (w BlockWindow) Empty() bool {
	return w.To < w.From
}

func (w BlockWindow) String() string {
	return fmt.Sprintf("[%d, %d]", w.From, w.To)
}
