package page

import (
	util "github.com/lethanhphong/pagebuffer/internal/utils"
)

// CreateTestPage builds a Page with the given id and payload, truncating
// data that overflows the fixed payload size. Intended for tests only.
func CreateTestPage(pageID util.PageID, data []byte) *Page {
	p := &Page{
		Header: PageHeader{
			PageID: pageID,
			Flags:  0,
		},
	}
	if len(data) > len(p.Data) {
		data = data[:len(p.Data)] // Truncate to fit
	}
	copy(p.Data[:], data)
	return p
}
