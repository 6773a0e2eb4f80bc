package tagcodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Charsets(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		wantErr bool
	}{
		{"default when empty", "", false},
		{"windows-1251", "windows-1251", false},
		{"cp1251 alias", "cp1251", false},
		{"koi8-r", "koi8-r", false},
		{"utf-8", "utf-8", false},
		{"unknown", "klingon", true},
		{"multi-byte non utf-8", "shift_jis", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.charset)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedCharset)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.Charset())
		})
	}
}

func TestPayload_RoundTrip(t *testing.T) {
	c := Default()

	inputs := []string{
		"",
		"hello",
		"Склад 4, стеллаж 12",
		strings.Repeat("a", PayloadSize),
		"mixed ASCII и кириллица №5",
	}

	for _, in := range inputs {
		p, err := c.EncodePayload(in)
		require.NoError(t, err)

		out, err := c.DecodePayload(p)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncodePayload_EmptyIsBlank(t *testing.T) {
	p, err := Default().EncodePayload("")
	require.NoError(t, err)
	assert.True(t, p.IsBlank())
	assert.Equal(t, Payload{}, p)
}

func TestEncodePayload_PadsWithNUL(t *testing.T) {
	p, err := Default().EncodePayload("abc")
	require.NoError(t, err)

	assert.Equal(t, []byte("abc"), p[:3])
	for i := 3; i < PayloadSize; i++ {
		if p[i] != 0 {
			t.Fatalf("byte %d = 0x%02x, want NUL", i, p[i])
		}
	}
}

func TestEncodePayload_SingleBytePerCyrillicRune(t *testing.T) {
	p, err := Default().EncodePayload("Жук")
	require.NoError(t, err)

	// windows-1251: Ж=0xC6 у=0xF3 к=0xEA
	assert.Equal(t, []byte{0xC6, 0xF3, 0xEA, 0x00}, p[:4])
}

func TestEncodePayload_Truncates(t *testing.T) {
	long := strings.Repeat("x", PayloadSize+76)

	p, err := Default().EncodePayload(long)
	require.NoError(t, err)

	out, err := Default().DecodePayload(p)
	require.NoError(t, err)
	assert.Len(t, out, PayloadSize)
	assert.Equal(t, long[:PayloadSize], out)
}

func TestEncodePayload_UTF8TruncatesOnRuneBoundary(t *testing.T) {
	c, err := New("utf-8")
	require.NoError(t, err)

	// 'a' followed by 2-byte runes: the last rune would straddle byte 224.
	text := "a" + strings.Repeat("ж", PayloadSize)

	p, err := c.EncodePayload(text)
	require.NoError(t, err)

	out, err := c.DecodePayload(p)
	require.NoError(t, err)
	assert.Equal(t, "a"+strings.Repeat("ж", (PayloadSize-1)/2), out)
	assert.Equal(t, byte(0), p[PayloadSize-1])
}

func TestEncodePayload_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"NUL byte", "ab\x00cd"},
		{"not in code page", "emoji 🙂"},
		{"CJK in cp1251", "漢字"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Default().EncodePayload(tt.text)
			require.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestTagID_RoundTrip(t *testing.T) {
	for _, in := range []string{"", "E004010012345678", strings.Repeat("F", TagIDSize)} {
		id, err := EncodeTagID(in)
		require.NoError(t, err)

		out, err := DecodeTagID(id)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestEncodeTagID_EmptyIsAllNUL(t *testing.T) {
	id, err := EncodeTagID("")
	require.NoError(t, err)
	assert.Equal(t, TagID{}, id)
}

func TestEncodeTagID_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"cyrillic", "метка1"},
		{"accented", "tagé"},
		{"NUL", "tag\x00"},
		{"too long", strings.Repeat("A", TagIDSize+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeTagID(tt.text)
			require.ErrorIs(t, err, ErrInvalidTagID)
		})
	}
}

func TestDecodeTagID_RejectsHighBytes(t *testing.T) {
	var id TagID
	copy(id[:], []byte{'A', 0xC6})

	_, err := DecodeTagID(id)
	require.ErrorIs(t, err, ErrInvalidTagID)
}

func TestValidTagID(t *testing.T) {
	assert.True(t, ValidTagID("E0040100"))
	assert.False(t, ValidTagID(""))
	assert.False(t, ValidTagID("ключ"))
	assert.False(t, ValidTagID(strings.Repeat("1", 33)))
}
