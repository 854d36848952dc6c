package ngram

// Frequencies reports how often an ngram occurs globally
type Frequencies interface {
	Count(key Key) int
}

type combined struct {
	a, b *Index
}

// Combined returns the global occurrence table of a comparison between two
// corpora. Counts are summed, except that one index compared with itself is
// counted once.
func Combined(a, b *Index) Frequencies {
	if a == b || b == nil {
		return a
	}
	return combined{a: a, b: b}
}

func (c combined) Count(key Key) int {
	return c.a.Count(key) + c.b.Count(key)
}
