package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-spdy/spdymux/frame"
)

func TestTable_InsertGetRemove(t *testing.T) {
	tbl := NewTable()
	require.False(t, tbl.AnyActive())

	e := &StreamEntry{id: 1}
	tbl.Insert(e)
	require.True(t, tbl.AnyActive())
	require.Equal(t, 1, tbl.ActiveCount())

	got, ok := tbl.Get(1)
	require.True(t, ok)
	require.Same(t, e, got)

	tbl.Remove(1)
	require.Equal(t, 0, tbl.ActiveCount())
	_, ok = tbl.Get(1)
	require.False(t, ok)
}

func TestTable_EachPreservesInsertionOrder(t *testing.T) {
	tbl := NewTable()
	ids := []frame.StreamId{3, 1, 5, 2}
	for _, id := range ids {
		tbl.Insert(&StreamEntry{id: id})
	}

	var seen []frame.StreamId
	tbl.Each(func(e *StreamEntry) { seen = append(seen, e.id) })
	require.Equal(t, ids, seen)

	tbl.Remove(1)
	seen = nil
	tbl.Each(func(e *StreamEntry) { seen = append(seen, e.id) })
	require.Equal(t, []frame.StreamId{3, 5, 2}, seen)
}

func TestTable_InsertReplaceKeepsSingleOrderEntry(t *testing.T) {
	tbl := NewTable()
	tbl.Insert(&StreamEntry{id: 1, priority: 1})
	tbl.Insert(&StreamEntry{id: 1, priority: 2})

	require.Equal(t, 1, tbl.ActiveCount())
	var seen []frame.StreamId
	tbl.Each(func(e *StreamEntry) { seen = append(seen, e.id) })
	require.Equal(t, []frame.StreamId{1}, seen)

	got, _ := tbl.Get(1)
	require.EqualValues(t, 2, got.priority)
}

func TestDataQueue_PushFrontPopFront(t *testing.T) {
	var q dataQueue
	require.True(t, q.empty())

	a := &frame.DataFrame{StreamId: 1, Data: []byte("a")}
	b := &frame.DataFrame{StreamId: 1, Data: []byte("b")}
	q.push(a)
	q.push(b)
	require.False(t, q.empty())
	require.Same(t, a, q.front())

	require.Same(t, a, q.popFront())
	require.Same(t, b, q.front())
	require.Same(t, b, q.popFront())
	require.True(t, q.empty())
}
