package keyboard

import (
	"fmt"
	"strconv"
)

// PaginationButtons renders a "prev, page x/y, next" row for action. Each button carries the page
// it leads to; the edges drop the arrow that would leave the range.
func PaginationButtons(action string, page, totalPages int) []InlineButton {
	totalPages = max(totalPages, 1)
	page = min(max(page, 1), totalPages)

	to := func(text string, p int) InlineButton {
		return InlineButton{Text: text, Unique: action, Data: strconv.Itoa(p)}
	}

	row := make([]InlineButton, 0, 3)
	if page > 1 {
		row = append(row, to("◀️ Prev", page-1))
	}
	row = append(row, to(fmt.Sprintf("Page %d/%d", page, totalPages), page))
	if page < totalPages {
		row = append(row, to("Next ▶️", page+1))
	}
	return row
}

// PageCount is the number of pages needed for total items, at least one.
func PageCount(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
