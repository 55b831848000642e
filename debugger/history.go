package debugger

// CommandHistory keeps a bounded list of entered commands for
// recall with the arrow keys
type CommandHistory struct {
	entries []string
	limit   int
	cursor  int // recall position; len(entries) means "past the end"
}

// NewCommandHistory creates a history with the given capacity
func NewCommandHistory(limit int) *CommandHistory {
	if limit <= 0 {
		limit = 1000
	}
	return &CommandHistory{limit: limit}
}

// Add appends a command, dropping the oldest past the limit and
// skipping consecutive duplicates
func (h *CommandHistory) Add(cmd string) {
	if cmd == "" {
		return
	}
	if n := len(h.entries); n > 0 && h.entries[n-1] == cmd {
		h.cursor = len(h.entries)
		return
	}
	h.entries = append(h.entries, cmd)
	if len(h.entries) > h.limit {
		h.entries = h.entries[1:]
	}
	h.cursor = len(h.entries)
}

// Previous moves back through the history and stays on the oldest
// entry once reached; returns "" only when the history is empty
func (h *CommandHistory) Previous() string {
	if len(h.entries) == 0 {
		return ""
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor]
}

// Next moves forward through the history; returns "" past the newest
func (h *CommandHistory) Next() string {
	if h.cursor < len(h.entries) {
		h.cursor++
	}
	if h.cursor == len(h.entries) {
		return ""
	}
	return h.entries[h.cursor]
}

// Len returns the number of stored commands
func (h *CommandHistory) Len() int {
	return len(h.entries)
}
