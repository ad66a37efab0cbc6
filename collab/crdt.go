package collab

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/oklog/ulid/v2"

	"golang.org/x/exp/maps"
)

// CrdtBackend is a sequence-CRDT document engine. Each atom is one rune
// with a dense position identifier; concurrent inserts at the same spot
// are ordered by position, then logical clock, then site id, so any two
// replicas that have seen the same ops render the same text.

// digits of a position identifier are in [0, positionBase)
const positionBase = 1 << 15

const (
	OpInsert = "insert"
	OpDelete = "delete"
	OpCursor = "cursor"
)

type AtomId struct {
	Clock int    `json:"clock"`
	Site  string `json:"site"`
}

type Atom struct {
	Id       AtomId `json:"id"`
	Value    string `json:"value"`
	Position []int  `json:"position"`
}

// Op is one replicated document operation. Insert and delete carry the
// atom, cursor carries the originating site's caret offset.
type Op struct {
	Action string `json:"action"`
	Atom   *Atom  `json:"atom,omitempty"`
	Site   string `json:"site,omitempty"`
	Pos    int    `json:"pos,omitempty"`
}

func NewSiteId() string {
	return ulid.Make().String()
}

type CrdtBackend struct {
	siteId  string
	clock   int
	atoms   []Atom
	cursor  int
	cursors map[string]RemoteCursor
	pending []Op
}

func NewCrdtBackend() *CrdtBackend {
	return NewCrdtBackendWithSiteId(NewSiteId())
}

func NewCrdtBackendWithSiteId(siteId string) *CrdtBackend {
	return &CrdtBackend{
		siteId:  siteId,
		cursors: map[string]RemoteCursor{},
	}
}

func (self *CrdtBackend) SiteId() string {
	return self.siteId
}

func (self *CrdtBackend) ApplyIntent(intent Intent) FrontendUpdate {
	switch v := intent.(type) {
	case InsertAt:
		pos := clampOffset(v.Pos, len(self.atoms))
		self.insertLocal(pos, v.Text)
		self.cursor = pos + len([]rune(v.Text))
		self.pushCursorOp()
		return textUpdate(self.RenderText(), self.RemoteCursors())
	case DeleteRange:
		start := clampOffset(v.Start, len(self.atoms))
		end := clampOffset(v.End, len(self.atoms))
		if end <= start {
			return EmptyUpdate()
		}
		for _, atom := range self.atoms[start:end] {
			self.pending = append(self.pending, Op{
				Action: OpDelete,
				Atom:   &Atom{Id: atom.Id},
			})
		}
		self.atoms = append(self.atoms[:start], self.atoms[end:]...)
		self.cursor = start
		self.pushCursorOp()
		return textUpdate(self.RenderText(), self.RemoteCursors())
	case MoveCursor:
		self.cursor = clampOffset(v.Pos, len(self.atoms))
		self.pushCursorOp()
		return FrontendUpdate{RemoteCursors: self.RemoteCursors()}
	case ReplaceAll:
		for _, atom := range self.atoms {
			self.pending = append(self.pending, Op{
				Action: OpDelete,
				Atom:   &Atom{Id: atom.Id},
			})
		}
		self.atoms = nil
		self.insertLocal(0, v.Text)
		self.cursor = clampOffset(self.cursor, len(self.atoms))
		self.pushCursorOp()
		return textUpdate(self.RenderText(), self.RemoteCursors())
	default:
		return EmptyUpdate()
	}
}

// ApplyRemote decodes a JSON op batch produced by a peer's LocalOps and
// merges it. The whole batch is validated before any op is applied, so a
// malformed payload leaves the document unchanged.
func (self *CrdtBackend) ApplyRemote(payload []byte) (FrontendUpdate, error) {
	var ops []Op
	if err := json.Unmarshal(payload, &ops); err != nil {
		return EmptyUpdate(), &ProtocolError{Cause: err}
	}
	for _, op := range ops {
		if err := validateOp(&op); err != nil {
			return EmptyUpdate(), &ProtocolError{Cause: err}
		}
	}

	textChanged := false
	for _, op := range ops {
		switch op.Action {
		case OpInsert:
			if self.insertAtom(*op.Atom) {
				textChanged = true
			}
			if self.clock < op.Atom.Id.Clock {
				self.clock = op.Atom.Id.Clock
			}
		case OpDelete:
			if self.deleteAtom(op.Atom.Id) {
				textChanged = true
			}
		case OpCursor:
			if op.Site != self.siteId {
				self.cursors[op.Site] = RemoteCursor{
					SiteId: op.Site,
					Pos:    clampOffset(op.Pos, len(self.atoms)),
					Color:  siteColor(op.Site),
				}
			}
		}
	}

	if textChanged {
		return textUpdate(self.RenderText(), self.RemoteCursors()), nil
	}
	return FrontendUpdate{RemoteCursors: self.RemoteCursors()}, nil
}

func (self *CrdtBackend) RenderText() string {
	runes := make([]rune, 0, len(self.atoms))
	for _, atom := range self.atoms {
		runes = append(runes, []rune(atom.Value)...)
	}
	return string(runes)
}

func (self *CrdtBackend) RemoteCursors() []RemoteCursor {
	siteIds := maps.Keys(self.cursors)
	sort.Strings(siteIds)
	cursors := make([]RemoteCursor, 0, len(siteIds))
	for _, siteId := range siteIds {
		cursors = append(cursors, self.cursors[siteId])
	}
	return cursors
}

func (self *CrdtBackend) Cursor() int {
	return self.cursor
}

// LocalOps drains the ops generated by local intents since the last call,
// encoded for the room transport. Returns nil when there is nothing to
// publish.
func (self *CrdtBackend) LocalOps() ([]byte, error) {
	if len(self.pending) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(self.pending)
	if err != nil {
		return nil, &ProtocolError{Cause: err}
	}
	self.pending = nil
	return payload, nil
}

func (self *CrdtBackend) insertLocal(pos int, text string) {
	left := []int(nil)
	if 0 < pos {
		left = self.atoms[pos-1].Position
	}
	right := []int(nil)
	if pos < len(self.atoms) {
		right = self.atoms[pos].Position
	}
	for _, r := range text {
		self.clock += 1
		position := positionBetween(left, right)
		atom := Atom{
			Id:       AtomId{Clock: self.clock, Site: self.siteId},
			Value:    string(r),
			Position: position,
		}
		// place by the shared total order, same as a remote delivery,
		// so all replicas agree on where this atom lands
		self.insertAtom(atom)
		self.pending = append(self.pending, Op{Action: OpInsert, Atom: &atom})
		left = position
	}
}

// insertAtom places an atom by position order. Re-delivery of an op the
// replica has already seen is ignored.
func (self *CrdtBackend) insertAtom(atom Atom) bool {
	i := sort.Search(len(self.atoms), func(i int) bool {
		return 0 <= compareAtoms(&self.atoms[i], &atom)
	})
	if i < len(self.atoms) && self.atoms[i].Id == atom.Id {
		return false
	}
	self.atoms = append(self.atoms, Atom{})
	copy(self.atoms[i+1:], self.atoms[i:])
	self.atoms[i] = atom
	return true
}

func (self *CrdtBackend) deleteAtom(id AtomId) bool {
	for i := range self.atoms {
		if self.atoms[i].Id == id {
			self.atoms = append(self.atoms[:i], self.atoms[i+1:]...)
			return true
		}
	}
	return false
}

func (self *CrdtBackend) pushCursorOp() {
	self.pending = append(self.pending, Op{
		Action: OpCursor,
		Site:   self.siteId,
		Pos:    self.cursor,
	})
}

func validateOp(op *Op) error {
	switch op.Action {
	case OpInsert:
		if op.Atom == nil || len(op.Atom.Position) == 0 {
			return fmt.Errorf("insert op missing atom position")
		}
		if len([]rune(op.Atom.Value)) != 1 {
			return fmt.Errorf("insert op value must be a single character: %q", op.Atom.Value)
		}
	case OpDelete:
		if op.Atom == nil {
			return fmt.Errorf("delete op missing atom id")
		}
	case OpCursor:
		if op.Site == "" {
			return fmt.Errorf("cursor op missing site id")
		}
	default:
		return fmt.Errorf("unknown op action: %q", op.Action)
	}
	return nil
}

// compareAtoms orders atoms by position identifier, then logical clock,
// then site id. This is the total order all replicas agree on.
func compareAtoms(a *Atom, b *Atom) int {
	n := len(a.Position)
	if len(b.Position) < n {
		n = len(b.Position)
	}
	for i := 0; i < n; i += 1 {
		if a.Position[i] != b.Position[i] {
			if a.Position[i] < b.Position[i] {
				return -1
			}
			return 1
		}
	}
	if len(a.Position) != len(b.Position) {
		if len(a.Position) < len(b.Position) {
			return -1
		}
		return 1
	}
	if a.Id.Clock != b.Id.Clock {
		if a.Id.Clock < b.Id.Clock {
			return -1
		}
		return 1
	}
	if a.Id.Site != b.Id.Site {
		if a.Id.Site < b.Id.Site {
			return -1
		}
		return 1
	}
	return 0
}

// positionBetween allocates a dense position strictly between left and
// right. A missing left bound reads as 0 digits, a missing right bound as
// positionBase digits.
func positionBetween(left []int, right []int) []int {
	position := []int{}
	for i := 0; ; i += 1 {
		l := 0
		if i < len(left) {
			l = left[i]
		}
		r := positionBase
		if i < len(right) {
			r = right[i]
		}
		if 1 < r-l {
			return append(position, l+1)
		}
		position = append(position, l)
		if r-l == 1 {
			// any extension of the left prefix sorts before right
			right = nil
		}
	}
}

// a stable caret color for a site, derived from its id
func siteColor(siteId string) [4]float32 {
	h := fnv.New32a()
	h.Write([]byte(siteId))
	v := h.Sum32()
	return [4]float32{
		float32(v&0xff)/255.0*0.7 + 0.3,
		float32((v>>8)&0xff)/255.0*0.7 + 0.3,
		float32((v>>16)&0xff)/255.0*0.7 + 0.3,
		1.0,
	}
}
