package processor

import (
	"strings"
)

type transcript struct {
	text  strings.Builder
	index int
}

// transcripts accumulates streamed transcript fragments per item. A fragment
// whose index is lower than the last seen one replaces the text.
type transcripts map[string]*transcript

func (ts transcripts) add(itemID string, index int, delta string) string {
	t, ok := ts[itemID]
	if !ok {
		t = &transcript{index: index}
		ts[itemID] = t
	}

	if index < t.index {
		t.text.Reset()
	}
	t.text.WriteString(delta)
	t.index = index

	return t.text.String()
}

// finish returns the final transcript of an item and forgets it. An explicit
// transcript wins over the accumulated one.
func (ts transcripts) finish(itemID, explicit string) string {
	final := explicit
	if t, ok := ts[itemID]; ok {
		if final == "" {
			final = t.text.String()
		}
		delete(ts, itemID)
	}
	return final
}
