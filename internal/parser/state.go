package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

// State is the position of the statement splitter between two lines.
type State int

const (
	// Scanning is inside (or before) a statement, outside quotes and comments.
	Scanning State = iota
	// InQuotedValue is inside a single-quoted literal that spans lines.
	InQuotedValue
	// InBlockComment is inside a /* */ comment that spans lines.
	InBlockComment
	// Closed is directly after a statement terminator.
	Closed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case InQuotedValue:
		return "in_quoted_value"
	case InBlockComment:
		return "in_block_comment"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Machine is the full splitter state carried from one line to the next.
type Machine struct {
	State   State
	Pending string // text of the statement accumulated so far
}

const (
	terminator   = ';'
	quote        = '\''
	blockOpen    = "/*"
	blockClose   = "*/"
	dashComment  = "--"
	slashComment = "//"
)

// Step feeds one line (without its newline) into the machine and returns the
// next machine plus the statement completed by this line, if any.
func Step(m Machine, line string) (Machine, string, bool) {
	piece, end := scanLine(m.State, line)

	pending := m.Pending

	if end == InQuotedValue {
		// Newlines inside quoted values are part of the value.
		pending = join(pending, piece, m.State) + "\n"

		return Machine{State: InQuotedValue, Pending: pending}, "", false
	}

	if isBlank(piece) {
		return Machine{State: settle(m.State, end, pending), Pending: pending}, "", false
	}

	pending = join(pending, trimRight(piece), m.State)

	if pending[len(pending)-1] != terminator {
		return Machine{State: openState(end), Pending: pending}, "", false
	}

	stmt := trimSpace(pending)

	if end == InBlockComment {
		return Machine{State: InBlockComment}, stmt, true
	}

	return Machine{State: Closed}, stmt, true
}

// scanLine strips comments from line, tracking quotes, and returns the
// surviving text together with the state at end of line.
func scanLine(start State, line string) (string, State) {
	var out []byte

	state := start
	if state == Closed {
		state = Scanning
	}

	for i := 0; i < len(line); {
		switch state {
		case InBlockComment:
			j := indexFrom(line, blockClose, i)
			if j < 0 {
				return string(out), InBlockComment
			}

			i = j + len(blockClose)
			state = Scanning

		case InQuotedValue:
			c := line[i]
			out = append(out, c)
			i++

			if c != quote {
				continue
			}

			// A doubled quote is an escaped literal quote.
			if i < len(line) && line[i] == quote {
				out = append(out, quote)
				i++

				continue
			}

			state = Scanning

		default:
			switch {
			case hasPrefixAt(line, dashComment, i), hasPrefixAt(line, slashComment, i):
				return string(out), Scanning
			case hasPrefixAt(line, blockOpen, i):
				state = InBlockComment
				i += len(blockOpen)
			case line[i] == quote:
				out = append(out, quote)
				state = InQuotedValue
				i++
			default:
				out = append(out, line[i])
				i++
			}
		}
	}

	return string(out), state
}

// join appends piece to pending, separating lines with a newline unless the
// piece continues a quoted value whose newline is already in pending.
func join(pending, piece string, from State) string {
	if pending == "" || from == InQuotedValue {
		return pending + piece
	}

	if piece == "" {
		return pending
	}

	return pending + "\n" + piece
}

// settle picks the state after a line that contributed no text.
func settle(prev, end State, pending string) State {
	if end == InBlockComment {
		return InBlockComment
	}

	if prev == Closed && pending == "" {
		return Closed
	}

	return openState(end)
}

func openState(end State) State {
	if end == InBlockComment {
		return InBlockComment
	}

	return Scanning
}
