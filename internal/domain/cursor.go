package domain

// Cursor is an opaque position in an item's change stream.
// The zero value means "no cursor" (start of stream) and is not the same
// thing as a valid cursor whose token happens to be empty.
type Cursor struct {
	Token string
	Valid bool
}

// NewCursor returns a valid cursor holding token.
func NewCursor(token string) Cursor {
	return Cursor{Token: token, Valid: true}
}

// String returns the token, or "<none>" for an absent cursor. Used in logs.
func (c Cursor) String() string {
	if !c.Valid {
		return "<none>"
	}
	return c.Token
}
