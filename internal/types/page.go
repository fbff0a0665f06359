package types

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Cursor is the opaque offset token returned by the changes feed. It is
// advanced only by assigning the next_offset of the most recently fetched
// page (spec.md §3 I1) — never constructed or parsed by value.
type Cursor string

// Item is one opaque resource record from the feed's "data" array. Its
// schema is out of scope for this module (spec.md §1), so it is carried
// as the raw JSON the server sent, never unmarshaled into a typed struct.
type Item []byte

// Page is the result of one feed request (spec.md §3).
type Page struct {
	Items      []Item
	NextOffset Cursor
	PrevOffset Cursor
}

// Empty reports whether the page carried zero items — the BackwardRetriever's
// termination condition and the ForwardRetriever's idle-sleep trigger.
func (p *Page) Empty() bool {
	return p == nil || len(p.Items) == 0
}

// DecodePage parses one changes-feed response body into a Page.
//
// Only three fields are relied upon (spec.md §6):
//
//	{ "data": [...], "next_page": {"offset": "..."}, "prev_page": {"offset": "..."} }
//
// gjson walks the raw bytes directly rather than fully unmarshaling into Go
// structs, since "data" elements are opaque and may be arbitrarily large or
// deeply nested — the registry's resource schema is not this module's concern.
func DecodePage(body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode page: invalid JSON body")
	}

	parsed := gjson.ParseBytes(body)
	dataResult := parsed.Get("data")
	if !dataResult.Exists() {
		return nil, fmt.Errorf("decode page: missing %q field", "data")
	}

	items := make([]Item, 0, len(dataResult.Array()))
	for _, entry := range dataResult.Array() {
		items = append(items, []byte(entry.Raw))
	}

	return &Page{
		Items:      items,
		NextOffset: Cursor(parsed.Get("next_page.offset").String()),
		PrevOffset: Cursor(parsed.Get("prev_page.offset").String()),
	}, nil
}
