package listing

// DefaultPageSize is used when a table is built without an explicit size.
const DefaultPageSize = 10

// Cursor is a 1-based page position.
type Cursor struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Page is one window over a view.
type Page[T any] struct {
	Items      []T `json:"items"`
	Number     int `json:"page"`
	Size       int `json:"page_size"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
	// From and To are the 1-based positions of the first and last item shown,
	// both zero for an empty view.
	From int `json:"from"`
	To   int `json:"to"`
}

func (p Page[T]) HasNext() bool { return p.Number < p.TotalPages }
func (p Page[T]) HasPrev() bool { return p.Number > 1 }

// TotalPages is never less than one so an empty view still has a page to show.
func TotalPages(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := (n + size - 1) / size
	if pages < 1 {
		return 1
	}
	return pages
}

// Clamp keeps page within [1, TotalPages(n, size)].
func Clamp(page, n, size int) int {
	total := TotalPages(n, size)
	if page > total {
		page = total
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Paginate slices items at cursor. The cursor page is clamped first.
func Paginate[T any](items []T, c Cursor) Page[T] {
	size := c.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	n := len(items)
	number := Clamp(c.Page, n, size)

	start := (number - 1) * size
	end := min(start+size, n)
	if start > n {
		start = n
	}

	window := make([]T, end-start)
	copy(window, items[start:end])

	p := Page[T]{
		Items:      window,
		Number:     number,
		Size:       size,
		TotalPages: TotalPages(n, size),
		TotalItems: n,
	}
	if len(window) > 0 {
		p.From = start + 1
		p.To = end
	}
	return p
}

// Paginator owns the cursor of one table. It is not safe for concurrent use; the
// owning controller serialises access.
type Paginator struct {
	cursor Cursor
	total  int
}

func NewPaginator(size int) *Paginator {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Paginator{cursor: Cursor{Page: 1, Size: size}}
}

func (p *Paginator) Cursor() Cursor { return p.cursor }

// Render clamps the cursor against view and returns the current page.
func (p *Paginator) Render(view []Row) Page[Row] {
	p.total = len(view)
	p.cursor.Page = Clamp(p.cursor.Page, p.total, p.cursor.Size)
	return Paginate(view, p.cursor)
}

// Next advances one page unless the last rendered page was the final one.
func (p *Paginator) Next() {
	if p.cursor.Page < TotalPages(p.total, p.cursor.Size) {
		p.cursor.Page++
	}
}

// Prev steps back one page unless already on the first.
func (p *Paginator) Prev() {
	if p.cursor.Page > 1 {
		p.cursor.Page--
	}
}

func (p *Paginator) Reset() {
	p.cursor.Page = 1
}

// SetSize changes the page size and returns to the first page.
func (p *Paginator) SetSize(size int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	p.cursor = Cursor{Page: 1, Size: size}
}

// Observe records the view length without rendering, so Next/Prev bounds follow
// the latest view even before the next render.
func (p *Paginator) Observe(n int) {
	p.total = n
}
