package collab

// the boundary between the presentation layer and the document engine.
// the presentation layer speaks intents and renders frontend updates.
// how text is represented internally is owned by the backend.

// an Intent is one local user edit action.
// all offsets are character (rune) indices into the current text,
// never byte offsets. Backends clamp out-of-range offsets.
type Intent interface {
	isIntent()
}

// insert `Text` at character offset `Pos`
type InsertAt struct {
	Pos  int
	Text string
}

// delete the half-open character range [Start, End)
type DeleteRange struct {
	Start int
	End   int
}

// local caret movement only
type MoveCursor struct {
	Pos int
}

// replace the entire document, e.g. opening a file
type ReplaceAll struct {
	Text string
}

func (InsertAt) isIntent()    {}
func (DeleteRange) isIntent() {}
func (MoveCursor) isIntent()  {}
func (ReplaceAll) isIntent()  {}

// another participant's caret. Owned and refreshed by the backend.
type RemoteCursor struct {
	SiteId string
	Pos    int
	// rgba, normalized [0, 1]
	Color [4]float32
}

// the complete renderable state after processing an intent or remote op.
// `FullText == nil` means the text did not change, only cursor state.
// When set, it is a full snapshot. The presentation layer can always
// repaint from a FrontendUpdate alone.
type FrontendUpdate struct {
	FullText      *string
	RemoteCursors []RemoteCursor
}

func EmptyUpdate() FrontendUpdate {
	return FrontendUpdate{}
}

func textUpdate(text string, cursors []RemoteCursor) FrontendUpdate {
	return FrontendUpdate{
		FullText:      &text,
		RemoteCursors: cursors,
	}
}

// DocBackend is the document engine capability set.
// A backend applies intents atomically and never raises on malformed
// offsets. `ApplyRemote` may return a *ProtocolError on an undecodable
// payload, in which case already-applied local state must be unchanged
// (validate then apply).
type DocBackend interface {
	ApplyIntent(intent Intent) FrontendUpdate
	ApplyRemote(payload []byte) (FrontendUpdate, error)
	// authoritative current text, consistent with the most recent
	// FrontendUpdate.FullText
	RenderText() string
	// latest known positions of all remote participants,
	// one entry per site id, most recent wins
	RemoteCursors() []RemoteCursor
}

// LocalBackend is the reference backend: a plain rune buffer with no
// remote-merge capability. `ApplyRemote` is explicitly a no-op.
type LocalBackend struct {
	text   []rune
	cursor int
}

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (self *LocalBackend) ApplyIntent(intent Intent) FrontendUpdate {
	switch v := intent.(type) {
	case InsertAt:
		pos := clampOffset(v.Pos, len(self.text))
		next := make([]rune, 0, len(self.text)+len(v.Text))
		next = append(next, self.text[:pos]...)
		next = append(next, []rune(v.Text)...)
		next = append(next, self.text[pos:]...)
		self.text = next
		self.cursor = pos + len([]rune(v.Text))
		return textUpdate(string(self.text), nil)
	case DeleteRange:
		start := clampOffset(v.Start, len(self.text))
		end := clampOffset(v.End, len(self.text))
		if end <= start {
			return EmptyUpdate()
		}
		self.text = append(self.text[:start], self.text[end:]...)
		self.cursor = start
		return textUpdate(string(self.text), nil)
	case MoveCursor:
		self.cursor = clampOffset(v.Pos, len(self.text))
		return EmptyUpdate()
	case ReplaceAll:
		self.text = []rune(v.Text)
		self.cursor = clampOffset(self.cursor, len(self.text))
		return textUpdate(string(self.text), nil)
	default:
		return EmptyUpdate()
	}
}

func (self *LocalBackend) ApplyRemote(payload []byte) (FrontendUpdate, error) {
	// no merge capability. Explicitly a no-op, not a crash.
	return EmptyUpdate(), nil
}

func (self *LocalBackend) RenderText() string {
	return string(self.text)
}

func (self *LocalBackend) RemoteCursors() []RemoteCursor {
	return nil
}

func (self *LocalBackend) Cursor() int {
	return self.cursor
}

func clampOffset(pos int, length int) int {
	if pos < 0 {
		return 0
	}
	if length < pos {
		return length
	}
	return pos
}
