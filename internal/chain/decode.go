package chain

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// toInt64 converts any ABI integer value (sized ints or *big.Int) to int64.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return 0, nil
		}
		if !n.IsInt64() {
			return 0, fmt.Errorf("%w: %s overflows int64", ErrBadResult, n.String())
		}
		return n.Int64(), nil
	case big.Int:
		return toInt64(&n)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrBadResult, u)
		}
		return int64(u), nil
	}
	return 0, fmt.Errorf("%w: %T is not an integer", ErrBadResult, v)
}

func toUint64(v any) (uint64, error) {
	n, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative value %d", ErrBadResult, n)
	}
	return uint64(n), nil
}

func isList(rv reflect.Value) bool {
	return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
}

// toGrid converts a nested integer array of any width (uint8[4][4],
// uint256[][], ...) into a Grid. Values outside 0..255 collapse to 255.
func toGrid(v any) (Grid, error) {
	rv := reflect.ValueOf(v)
	if !isList(rv) {
		return nil, fmt.Errorf("%w: %T is not a 2-D array", ErrBadResult, v)
	}
	out := make(Grid, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		row := rv.Index(i)
		if row.Kind() == reflect.Interface {
			row = row.Elem()
		}
		if !isList(row) {
			return nil, fmt.Errorf("%w: row %d is %s, not an array", ErrBadResult, i, row.Kind())
		}
		cells := make([]uint8, row.Len())
		for j := 0; j < row.Len(); j++ {
			n, err := toInt64(row.Index(j).Interface())
			if err != nil {
				cells[j] = math.MaxUint8
				continue
			}
			cells[j] = clampCell(n)
		}
		out[i] = cells
	}
	return out, nil
}

func clampCell(n int64) uint8 {
	if n < 0 || n > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(n)
}

func toUint64s(v any) ([]uint64, error) {
	rv := reflect.ValueOf(v)
	if !isList(rv) {
		return nil, fmt.Errorf("%w: %T is not an array", ErrBadResult, v)
	}
	out := make([]uint64, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		n, err := toUint64(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func toInt64List(v any) ([]int64, error) {
	rv := reflect.ValueOf(v)
	if !isList(rv) {
		return nil, fmt.Errorf("%w: %T is not an array", ErrBadResult, v)
	}
	out := make([]int64, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		n, err := toInt64(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func toAddresses(v any) ([]common.Address, error) {
	switch a := v.(type) {
	case []common.Address:
		return append([]common.Address(nil), a...), nil
	}
	rv := reflect.ValueOf(v)
	if !isList(rv) {
		return nil, fmt.Errorf("%w: %T is not an address array", ErrBadResult, v)
	}
	out := make([]common.Address, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		addr, ok := rv.Index(i).Interface().(common.Address)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrBadResult, i, rv.Index(i).Interface())
		}
		out = append(out, addr)
	}
	return out, nil
}

// packArgs converts plain Go integers into the types the method's ABI inputs expect,
// so the client keeps working when a deployment widens or narrows an argument.
func packArgs(method abi.Method, values ...int64) ([]any, error) {
	if len(values) != len(method.Inputs) {
		return nil, fmt.Errorf("chain: %s takes %d arguments, got %d", method.Name, len(method.Inputs), len(values))
	}
	out := make([]any, len(values))
	for i, in := range method.Inputs {
		want := in.Type.GetType()
		v := values[i]
		switch {
		case want == bigIntType:
			if v < 0 && in.Type.T == abi.UintTy {
				return nil, fmt.Errorf("%w: %s argument %s is negative for %s", ErrBadArgument, method.Name, in.Name, in.Type.String())
			}
			out[i] = big.NewInt(v)
		case want.Kind() >= reflect.Int && want.Kind() <= reflect.Int64:
			rv := reflect.New(want).Elem()
			if rv.OverflowInt(v) {
				return nil, fmt.Errorf("%w: %s argument %s overflows %s", ErrBadArgument, method.Name, in.Name, in.Type.String())
			}
			rv.SetInt(v)
			out[i] = rv.Interface()
		case want.Kind() >= reflect.Uint && want.Kind() <= reflect.Uint64:
			rv := reflect.New(want).Elem()
			if v < 0 || rv.OverflowUint(uint64(v)) {
				return nil, fmt.Errorf("%w: %s argument %s overflows %s", ErrBadArgument, method.Name, in.Name, in.Type.String())
			}
			rv.SetUint(uint64(v))
			out[i] = rv.Interface()
		default:
			return nil, fmt.Errorf("chain: %s argument %s has unsupported type %s", method.Name, in.Name, in.Type.String())
		}
	}
	return out, nil
}
