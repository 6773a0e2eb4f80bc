package reader

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogue_CodesUniqueAndOrdered(t *testing.T) {
	kinds := Catalogue()
	require.NotEmpty(t, kinds)

	seen := make(map[int]bool)
	prev := -1
	for _, k := range kinds {
		assert.False(t, seen[k.Code], "duplicate code %d", k.Code)
		assert.Greater(t, k.Code, prev)
		assert.GreaterOrEqual(t, k.Code, 0, "catalogue codes are non-negative")
		assert.NotEmpty(t, k.Message)
		seen[k.Code] = true
		prev = k.Code
	}
}

func TestKind_Describe(t *testing.T) {
	e := ReaderExists.Describe()
	assert.Equal(t, ReaderExists.Code, e.Code)
	assert.Equal(t, ReaderExists.Message, e.Message)

	e = ReaderBusAddrOutOfRange.Describe("bus_addr=300")
	assert.Equal(t, ReaderBusAddrOutOfRange.Message+" (bus_addr=300)", e.Message)

	// Describe never mutates the catalogue entry.
	assert.NotContains(t, ReaderBusAddrOutOfRange.Message, "300")
}

func TestError_Is(t *testing.T) {
	var err error = ReaderNotExists.Describe("x")

	assert.True(t, errors.Is(err, ReaderNotExists))
	assert.False(t, errors.Is(err, ReaderExists))
	assert.True(t, errors.Is(err, &Error{Code: ReaderNotExists.Code}))

	native := NativeError(-120, "no reader found")
	assert.True(t, native.Native())
	assert.False(t, ReaderExists.Describe().Native())
}

func TestKind_Check(t *testing.T) {
	tests := []struct {
		name string
		kind *Kind
		v    any
		fail bool
	}{
		{"reader id ok", InvalidReaderID, "dock-1", false},
		{"reader id number", InvalidReaderID, 5, true},
		{"reader id empty", InvalidReaderID, "", true},
		{"reader id padded", InvalidReaderID, " dock", true},
		{"reader id bracket", InvalidReaderID, "a]b", true},
		{"reader id newline", InvalidReaderID, "a\nb", true},
		{"reader id reserved", InvalidReaderID, "default", true},
		{"reader id too long", InvalidReaderID, strings.Repeat("r", 65), true},
		{"bus int", InvalidReaderBusAddr, 1, false},
		{"bus json float", InvalidReaderBusAddr, float64(7), false},
		{"bus json number", InvalidReaderBusAddr, json.Number("12"), false},
		{"bus fractional", InvalidReaderBusAddr, 1.5, true},
		{"bus string", InvalidReaderBusAddr, "1", true},
		{"bus bool", InvalidReaderBusAddr, true, true},
		{"bus nil", InvalidReaderBusAddr, nil, true},
		{"bus range low", ReaderBusAddrOutOfRange, -1, true},
		{"bus range high", ReaderBusAddrOutOfRange, 256, true},
		{"bus range edge", ReaderBusAddrOutOfRange, 255, false},
		{"bus range zero", ReaderBusAddrOutOfRange, float64(0), false},
		{"port ok", InvalidReaderPortNumber, 3, false},
		{"port negative", InvalidReaderPortNumber, -3, false},
		{"port too small", InvalidReaderPortNumber, int64(math.MinInt32) - 1, true},
		{"port too large", InvalidReaderPortNumber, int64(math.MaxInt32) + 1, true},
		{"port string", InvalidReaderPortNumber, "COM3", true},
		{"state bool", InvalidReaderState, false, false},
		{"state int", InvalidReaderState, 1, true},
		{"state string", InvalidReaderState, "true", true},
		{"tag ascii", InvalidTagID, "E0040100", false},
		{"tag non-ascii", InvalidTagID, "метка", true},
		{"tag empty", InvalidTagID, "", true},
		{"payload string", InvalidTagPayload, "text", false},
		{"payload number", InvalidTagPayload, 1, true},
		{"no predicate", ReaderExists, "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fail, tt.kind.Check(tt.v))
		})
	}
}

func TestShape(t *testing.T) {
	required := []string{FieldReaderID}
	optional := []string{FieldState}

	assert.Nil(t, shape(Fields{FieldReaderID: "a"}, required, optional)())
	assert.Nil(t, shape(Fields{FieldReaderID: "a", FieldState: true}, required, optional)())

	e := shape(nil, required, optional)()
	require.NotNil(t, e)
	assert.Equal(t, WrongRequestShape.Code, e.Code)

	e = shape(Fields{FieldState: true}, required, optional)()
	require.NotNil(t, e)
	assert.Contains(t, e.Message, "missing reader_id")

	e = shape(Fields{FieldReaderID: "a", "colour": "red"}, required, optional)()
	require.NotNil(t, e)
	assert.Contains(t, e.Message, "unexpected colour")

	e = shape(Fields{}, nil, optional)()
	require.NotNil(t, e)
}

func TestValidate_ShortCircuitsAndLogs(t *testing.T) {
	logger := &recordLogger{}
	r := NewRegistry(RegistryConfig{})
	r.SetLogger(logger)

	evaluated := false
	err := r.validate("op", []any{"arg"},
		when(ReadersListAlreadyIsEmpty, func() bool { return true }),
		func() *Error { evaluated = true; return nil },
	)

	require.ErrorIs(t, err, ReadersListAlreadyIsEmpty)
	assert.False(t, evaluated, "rules after the first failure must not run")
	assert.Equal(t, 1, logger.count("warn", "request rejected"))

	code, ok := logger.attr("request rejected", "error_code")
	require.True(t, ok)
	assert.Equal(t, ReadersListAlreadyIsEmpty.Code, code)
	op, _ := logger.attr("request rejected", "operation")
	assert.Equal(t, "op", op)
}

func TestValidate_PassReturnsUntypedNil(t *testing.T) {
	r := NewRegistry(RegistryConfig{})
	err := r.validate("op", nil, when(ReaderExists, func() bool { return false }))
	assert.NoError(t, err)
	assert.True(t, err == nil)
}
