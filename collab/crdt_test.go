package collab

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func exchange(t *testing.T, from *CrdtBackend, to *CrdtBackend) {
	payload, err := from.LocalOps()
	assert.Equal(t, err, nil)
	if payload == nil {
		return
	}
	_, err = to.ApplyRemote(payload)
	assert.Equal(t, err, nil)
}

func TestCrdtBackendIntents(t *testing.T) {
	backend := NewCrdtBackendWithSiteId("A")

	backend.ApplyIntent(ReplaceAll{Text: "abc"})
	backend.ApplyIntent(InsertAt{Pos: 1, Text: "X"})
	update := backend.ApplyIntent(DeleteRange{Start: 2, End: 3})

	assert.Equal(t, *update.FullText, "aXc")
	assert.Equal(t, backend.RenderText(), "aXc")
}

func TestCrdtBackendReplication(t *testing.T) {
	a := NewCrdtBackendWithSiteId("A")
	b := NewCrdtBackendWithSiteId("B")

	a.ApplyIntent(ReplaceAll{Text: "shared text"})
	exchange(t, a, b)
	assert.Equal(t, b.RenderText(), "shared text")

	b.ApplyIntent(InsertAt{Pos: 7, Text: "doc "})
	exchange(t, b, a)
	assert.Equal(t, a.RenderText(), "shared doc text")
	assert.Equal(t, a.RenderText(), b.RenderText())

	a.ApplyIntent(DeleteRange{Start: 0, End: 7})
	exchange(t, a, b)
	assert.Equal(t, b.RenderText(), "doc text")
}

func TestCrdtBackendConcurrentConvergence(t *testing.T) {
	a := NewCrdtBackendWithSiteId("A")
	b := NewCrdtBackendWithSiteId("B")

	a.ApplyIntent(ReplaceAll{Text: "base"})
	exchange(t, a, b)

	// concurrent edits at the same spot, then exchange both ways
	a.ApplyIntent(InsertAt{Pos: 2, Text: "X"})
	b.ApplyIntent(InsertAt{Pos: 2, Text: "Y"})

	opsA, err := a.LocalOps()
	assert.Equal(t, err, nil)
	opsB, err := b.LocalOps()
	assert.Equal(t, err, nil)

	_, err = a.ApplyRemote(opsB)
	assert.Equal(t, err, nil)
	_, err = b.ApplyRemote(opsA)
	assert.Equal(t, err, nil)

	assert.Equal(t, a.RenderText(), b.RenderText())
	assert.Equal(t, len([]rune(a.RenderText())), 6)
}

func TestCrdtBackendRedelivery(t *testing.T) {
	a := NewCrdtBackendWithSiteId("A")
	b := NewCrdtBackendWithSiteId("B")

	a.ApplyIntent(ReplaceAll{Text: "abc"})
	payload, err := a.LocalOps()
	assert.Equal(t, err, nil)

	_, err = b.ApplyRemote(payload)
	assert.Equal(t, err, nil)
	// the transport may re-deliver; the merge must be idempotent
	_, err = b.ApplyRemote(payload)
	assert.Equal(t, err, nil)
	assert.Equal(t, b.RenderText(), "abc")
}

func TestCrdtBackendMalformedPayload(t *testing.T) {
	backend := NewCrdtBackendWithSiteId("A")
	backend.ApplyIntent(ReplaceAll{Text: "abc"})

	_, err := backend.ApplyRemote([]byte("not json"))
	var protocolErr *ProtocolError
	assert.Equal(t, errors.As(err, &protocolErr), true)
	assert.Equal(t, backend.RenderText(), "abc")
}

func TestCrdtBackendValidateThenApply(t *testing.T) {
	backend := NewCrdtBackendWithSiteId("A")
	backend.ApplyIntent(ReplaceAll{Text: "abc"})

	// a batch with a valid insert followed by a malformed op must leave
	// the document untouched
	batch := []Op{
		{
			Action: OpInsert,
			Atom: &Atom{
				Id:       AtomId{Clock: 100, Site: "B"},
				Value:    "Z",
				Position: []int{positionBase - 1},
			},
		},
		{
			Action: "bogus",
		},
	}
	payload, err := json.Marshal(batch)
	assert.Equal(t, err, nil)

	_, err = backend.ApplyRemote(payload)
	var protocolErr *ProtocolError
	assert.Equal(t, errors.As(err, &protocolErr), true)
	assert.Equal(t, backend.RenderText(), "abc")
}

func TestCrdtBackendRemoteCursors(t *testing.T) {
	backend := NewCrdtBackendWithSiteId("A")
	backend.ApplyIntent(ReplaceAll{Text: "abcdef"})

	cursorOps := func(site string, pos int) []byte {
		payload, err := json.Marshal([]Op{{Action: OpCursor, Site: site, Pos: pos}})
		assert.Equal(t, err, nil)
		return payload
	}

	_, err := backend.ApplyRemote(cursorOps("C", 1))
	assert.Equal(t, err, nil)
	_, err = backend.ApplyRemote(cursorOps("B", 2))
	assert.Equal(t, err, nil)
	// one entry per site id, most recent wins
	_, err = backend.ApplyRemote(cursorOps("C", 4))
	assert.Equal(t, err, nil)

	cursors := backend.RemoteCursors()
	assert.Equal(t, len(cursors), 2)
	assert.Equal(t, cursors[0].SiteId, "B")
	assert.Equal(t, cursors[0].Pos, 2)
	assert.Equal(t, cursors[1].SiteId, "C")
	assert.Equal(t, cursors[1].Pos, 4)

	// the backend's own site is never a remote cursor
	_, err = backend.ApplyRemote(cursorOps("A", 3))
	assert.Equal(t, err, nil)
	assert.Equal(t, len(backend.RemoteCursors()), 2)
}

func TestCrdtBackendLocalOpsDrain(t *testing.T) {
	backend := NewCrdtBackendWithSiteId("A")
	backend.ApplyIntent(InsertAt{Pos: 0, Text: "hi"})

	payload, err := backend.LocalOps()
	assert.Equal(t, err, nil)
	assert.NotEqual(t, payload, nil)

	payload, err = backend.LocalOps()
	assert.Equal(t, err, nil)
	assert.Equal(t, payload, nil)
}

func TestCrdtOpCodecRoundTrip(t *testing.T) {
	ops := []Op{
		{
			Action: OpInsert,
			Atom: &Atom{
				Id:       AtomId{Clock: 7, Site: "A"},
				Value:    "x",
				Position: []int{1, 2, 3},
			},
		},
		{Action: OpDelete, Atom: &Atom{Id: AtomId{Clock: 7, Site: "A"}}},
		{Action: OpCursor, Site: "A", Pos: 3},
	}

	payload, err := json.Marshal(ops)
	assert.Equal(t, err, nil)

	var decoded []Op
	err = json.Unmarshal(payload, &decoded)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded, ops)
}

func TestPositionBetween(t *testing.T) {
	cases := []struct {
		left  []int
		right []int
	}{
		{nil, nil},
		{[]int{1}, []int{2}},
		{[]int{1}, []int{1, 1}},
		{[]int{1, 1}, []int{2}},
		{[]int{positionBase - 1}, nil},
		{nil, []int{1}},
	}
	for _, c := range cases {
		position := positionBetween(c.left, c.right)
		if c.left != nil {
			assert.Equal(t, lessPosition(c.left, position), true)
		}
		if c.right != nil {
			assert.Equal(t, lessPosition(position, c.right), true)
		}
	}
}

func lessPosition(a []int, b []int) bool {
	left := Atom{Position: a}
	right := Atom{Position: b}
	return compareAtoms(&left, &right) < 0
}
