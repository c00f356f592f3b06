package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestList(t *testing.T) {
	t.Run("EmitInSubscriptionOrder", func(t *testing.T) {
		var l List[int]
		var got []string

		l.Subscribe(func(v int) { got = append(got, "a") })
		l.Subscribe(func(v int) { got = append(got, "b") })
		l.Subscribe(func(v int) { got = append(got, "c") })

		l.Emit(1)
		assert.Equal(t, []string{"a", "b", "c"}, got)
	})

	t.Run("UnsubscribeIsIdempotent", func(t *testing.T) {
		var l List[string]
		calls := 0
		id := l.Subscribe(func(string) { calls++ })

		l.Unsubscribe(id)
		l.Unsubscribe(id)
		l.Unsubscribe(ID(999))

		l.Emit("x")
		assert.Equal(t, 0, calls)
		assert.Equal(t, 0, l.Len())
	})

	t.Run("NilSubscriberIgnored", func(t *testing.T) {
		var l List[int]
		assert.Equal(t, ID(0), l.Subscribe(nil))
		assert.Equal(t, 0, l.Len())
	})

	t.Run("UnsubscribeFromCallback", func(t *testing.T) {
		var l List[int]
		calls := 0
		var id ID
		id = l.Subscribe(func(int) {
			calls++
			l.Unsubscribe(id)
		})

		l.Emit(1)
		l.Emit(2)
		assert.Equal(t, 1, calls)
	})

	t.Run("Clear", func(t *testing.T) {
		var l List[int]
		l.Subscribe(func(int) {})
		l.Subscribe(func(int) {})
		l.Clear()
		assert.Equal(t, 0, l.Len())
	})
}
