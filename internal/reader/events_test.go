package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiSink_FansOutInOrder(t *testing.T) {
	var got []string
	a := EventSinkFunc(func(e Event) { got = append(got, "a:"+string(e.Type)) })
	b := EventSinkFunc(func(e Event) { got = append(got, "b:"+string(e.Type)) })

	MultiSink{a, b}.Publish(Event{Type: EventReaderAdded})
	assert.Equal(t, []string{"a:reader.added", "b:reader.added"}, got)
}

func TestEvent_Mutation(t *testing.T) {
	assert.True(t, Event{Type: EventReaderAdded}.Mutation())
	assert.True(t, Event{Type: EventReadersCleared}.Mutation())
	assert.False(t, Event{Type: EventTagsRead}.Mutation())
	assert.False(t, Event{Type: EventReaderConnected}.Mutation())
}

func TestEvents_StampedUTC(t *testing.T) {
	var ev events
	ev.add(EventReaderDeleted, "A", nil)

	assert.Len(t, ev, 1)
	assert.Equal(t, "A", ev[0].ReaderID)
	assert.Equal(t, "UTC", ev[0].Time.Location().String())
}
