package table

// Edit is the cell being edited and its pending text
type Edit struct {
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Pending string `json:"pending"`
}

// Signal is an input event that ends an edit
type Signal int

const (
	// SignalAccept confirms the pending value (Enter)
	SignalAccept Signal = iota
	// SignalCancel discards the pending value (Escape)
	SignalCancel
	// SignalBlur is a loss of focus; it confirms like SignalAccept
	SignalBlur
)

// SignalForKey maps a keyboard key name to a signal
func SignalForKey(key string) (Signal, bool) {
	switch key {
	case "Enter":
		return SignalAccept, true
	case "Escape", "Esc":
		return SignalCancel, true
	}
	return 0, false
}

// EditSession tracks the single cell being edited. The zero value is idle.
// Methods return the next session instead of mutating the receiver.
type EditSession struct {
	edit   Edit
	active bool
}

// Editing reports whether a cell is being edited
func (s EditSession) Editing() bool {
	return s.active
}

// Current returns the active edit
func (s EditSession) Current() (Edit, bool) {
	return s.edit, s.active
}

// Begin starts editing (row, col) with current as the pending value.
// While another edit is active it does nothing; that edit has to be committed
// or cancelled first.
func (s EditSession) Begin(row, col int, current string) EditSession {
	if s.active {
		return s
	}
	return EditSession{edit: Edit{Row: row, Col: col, Pending: current}, active: true}
}

// Update replaces the pending value
func (s EditSession) Update(text string) EditSession {
	if !s.active {
		return s
	}
	s.edit.Pending = text
	return s
}

// Commit writes the pending value into d and returns an idle session.
// The column is resolved to a field name against d's headers at this point, so a
// row or column that no longer exists leaves d untouched.
func (s EditSession) Commit(d *Dataset) (EditSession, *Dataset) {
	if !s.active {
		return s, d
	}
	field, ok := d.Field(s.edit.Col)
	if !ok || s.edit.Row < 0 || s.edit.Row >= d.Len() {
		return EditSession{}, d
	}
	return EditSession{}, d.SetCell(s.edit.Row, field, s.edit.Pending)
}

// Cancel discards the pending value
func (s EditSession) Cancel() EditSession {
	return EditSession{}
}

// Handle applies a signal to the session
func (s EditSession) Handle(sig Signal, d *Dataset) (EditSession, *Dataset) {
	switch sig {
	case SignalAccept, SignalBlur:
		return s.Commit(d)
	case SignalCancel:
		return s.Cancel(), d
	}
	return s, d
}
