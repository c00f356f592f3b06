package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUSBTMCFraming(t *testing.T) {
	t.Run("DevDepMsgOut", func(t *testing.T) {
		b := encodeDevDepMsgOut(7, []byte("*IDN?\n"))

		// 12 byte header + 6 bytes payload, padded to 20.
		require.Len(t, b, 20)
		assert.Equal(t, []byte{1, 7, 0xF8, 0, 6, 0, 0, 0, 1, 0, 0, 0}, b[:12])
		assert.Equal(t, []byte("*IDN?\n"), b[12:18])
		assert.Equal(t, []byte{0, 0}, b[18:])
	})

	t.Run("RequestDevDepMsgIn", func(t *testing.T) {
		b := encodeRequestDevDepMsgIn(255, 0x010000)
		assert.Equal(t, []byte{2, 255, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0}, b)
	})

	t.Run("DevDepMsgIn", func(t *testing.T) {
		in := []byte{2, 9, 0xF6, 0, 3, 0, 0, 0, 1, 0, 0, 0, '4', '2', '\n', 0}
		payload, eom, err := decodeDevDepMsgIn(in, 9)
		require.NoError(t, err)
		assert.True(t, eom)
		assert.Equal(t, []byte("42\n"), payload)
	})

	t.Run("DevDepMsgInPartial", func(t *testing.T) {
		in := []byte{2, 9, 0xF6, 0, 2, 0, 0, 0, 0, 0, 0, 0, '4', '2'}
		payload, eom, err := decodeDevDepMsgIn(in, 9)
		require.NoError(t, err)
		assert.False(t, eom)
		assert.Equal(t, []byte("42"), payload)
	})

	t.Run("TagMismatch", func(t *testing.T) {
		in := []byte{2, 8, 0xF7, 0, 0, 0, 0, 0, 1, 0, 0, 0}
		_, _, err := decodeDevDepMsgIn(in, 9)
		assert.Error(t, err)
	})

	t.Run("ShortHeader", func(t *testing.T) {
		_, _, err := decodeDevDepMsgIn([]byte{2, 9}, 9)
		assert.Error(t, err)
	})

	t.Run("SizeExceedsData", func(t *testing.T) {
		in := []byte{2, 9, 0xF6, 0, 10, 0, 0, 0, 1, 0, 0, 0, '4'}
		_, _, err := decodeDevDepMsgIn(in, 9)
		assert.Error(t, err)
	})
}
