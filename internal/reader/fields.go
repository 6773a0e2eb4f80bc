package reader

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Fields is a decoded request body. Values arrive as produced by
// encoding/json (float64 or json.Number for numbers) or as native Go values
// from in-process callers.
type Fields map[string]any

// Request field names.
const (
	FieldReaderID   = "reader_id"
	FieldBusAddr    = "bus_addr"
	FieldPortNumber = "port_number"
	FieldState      = "state"
)

// asInt returns v as an integer when it holds an integral number. Booleans
// and fractional values are rejected.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// rule is one validation step. It returns nil when the request passes.
type rule func() *Error

// field checks f[k.Param] against k's predicate when the key is present.
func field(k *Kind, f Fields) rule {
	return func() *Error {
		v, ok := f[k.Param]
		if !ok || !k.Check(v) {
			return nil
		}
		return k.Describe(fmt.Sprintf("%s=%v", k.Param, v))
	}
}

// when raises k with extra context if failed reports true.
func when(k *Kind, failed func() bool, extra ...string) rule {
	return func() *Error {
		if !failed() {
			return nil
		}
		return k.Describe(extra...)
	}
}

// shape checks that f carries every required key and no key outside
// required and optional.
func shape(f Fields, required, optional []string) rule {
	return func() *Error {
		if f == nil {
			return WrongRequestShape.Describe("no parameters")
		}

		var missing, unexpected []string
		for _, k := range required {
			if _, ok := f[k]; !ok {
				missing = append(missing, k)
			}
		}
		for k := range f {
			if !contains(required, k) && !contains(optional, k) {
				unexpected = append(unexpected, k)
			}
		}

		var extra []string
		if len(missing) > 0 {
			extra = append(extra, "missing "+strings.Join(missing, ", "))
		}
		if len(unexpected) > 0 {
			sort.Strings(unexpected)
			extra = append(extra, "unexpected "+strings.Join(unexpected, ", "))
		}
		if len(extra) > 0 {
			return WrongRequestShape.Describe(extra...)
		}
		if len(f) == 0 {
			return WrongRequestShape.Describe("no parameters")
		}
		return nil
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// validate runs rules in order and returns the first failure. Every failure
// is logged with the operation name and its arguments before returning.
func (r *Registry) validate(op string, args []any, rules ...rule) error {
	for _, check := range rules {
		if e := check(); e != nil {
			r.logger.Warn("request rejected",
				"operation", op,
				"args", args,
				"error_code", e.Code,
				"error_msg", e.Message,
			)
			return e
		}
	}
	return nil
}
