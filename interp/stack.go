package interp

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

const (
	// maxStackSize is the maximum combined height of the stack allowed
	// during execution.
	maxStackSize = 1000

	// maxScriptSize is the maximum allowed length of a raw script.
	maxScriptSize = 10000

	// maxNumLen is the maximum number of bytes a numeric stack item may
	// use.
	maxNumLen = 4
)

// stack is a data stack of byte slices. The last element is the top.
type stack [][]byte

// push adds the item to the top of the stack.
func (s *stack) push(item []byte) {
	*s = append(*s, item)
}

// pop removes and returns the top item.
func (s *stack) pop() ([]byte, error) {
	if len(*s) == 0 {
		return nil, scriptError(ErrInvalidStackOperation,
			"attempt to pop from empty stack")
	}

	top := (*s)[len(*s)-1]
	*s = (*s)[:len(*s)-1]

	return top, nil
}

// peek returns the item idx positions below the top without removing it.
func (s stack) peek(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(s) {
		str := fmt.Sprintf("index %d is invalid for stack size %d",
			idx, len(s))
		return nil, scriptError(ErrInvalidStackOperation, str)
	}

	return s[len(s)-1-idx], nil
}

// popInt pops the top item and interprets it as a script number.
func (s *stack) popInt(requireMinimal bool) (int, error) {
	item, err := s.pop()
	if err != nil {
		return 0, err
	}

	return makeScriptNum(item, requireMinimal)
}

// popBool pops the top item and interprets it as a boolean.
func (s *stack) popBool() (bool, error) {
	item, err := s.pop()
	if err != nil {
		return false, err
	}

	return asBool(item), nil
}

// pushBool pushes the canonical encoding of b.
func (s *stack) pushBool(b bool) {
	if b {
		s.push([]byte{1})
		return
	}
	s.push(nil)
}

// asBool returns the boolean value of a stack item. Any non-zero value is
// true, except for negative zero.
func asBool(item []byte) bool {
	for i := range item {
		if item[i] != 0 {
			// Negative zero is still zero.
			if i == len(item)-1 && item[i] == 0x80 {
				return false
			}
			return true
		}
	}

	return false
}

// makeScriptNum decodes a little-endian, sign-magnitude script number.
func makeScriptNum(v []byte, requireMinimal bool) (int, error) {
	if len(v) > maxNumLen {
		str := fmt.Sprintf("numeric value encoded as %x is %d bytes "+
			"which exceeds the max allowed of %d", v, len(v),
			maxNumLen)
		return 0, scriptError(ErrNumberTooBig, str)
	}

	if requireMinimal && len(v) > 0 {
		// The most significant byte may only be zero if the next byte
		// would otherwise be read as the sign bit.
		if v[len(v)-1]&0x7f == 0 {
			if len(v) == 1 || v[len(v)-2]&0x80 == 0 {
				str := fmt.Sprintf("numeric value encoded as "+
					"%x is not minimally encoded", v)
				return 0, scriptError(ErrMinimalData, str)
			}
		}
	}

	if len(v) == 0 {
		return 0, nil
	}

	var result int64
	for i, val := range v {
		result |= int64(val) << uint8(8*i)
	}

	if v[len(v)-1]&0x80 != 0 {
		result &= ^(int64(0x80) << uint8(8*(len(v)-1)))
		return int(-result), nil
	}

	return int(result), nil
}

// PushedStack decodes a script that consists purely of data pushes into the
// stack it would leave behind. OP_1NEGATE and the small integer opcodes push
// their numeric encoding. The boolean is false if the script contains any
// other opcode or fails to parse.
func PushedStack(script []byte) ([][]byte, bool) {
	var items [][]byte

	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		op := tokenizer.Opcode()
		switch {
		case op == txscript.OP_0:
			items = append(items, []byte{})

		case op <= txscript.OP_PUSHDATA4:
			items = append(items, bytes.Clone(tokenizer.Data()))

		case op == txscript.OP_1NEGATE:
			items = append(items, []byte{0x81})

		case op >= txscript.OP_1 && op <= txscript.OP_16:
			items = append(items, []byte{op - txscript.OP_1 + 1})

		default:
			return nil, false
		}
	}
	if tokenizer.Err() != nil {
		return nil, false
	}

	return items, true
}

// IsPushOnly returns whether the script only pushes data. OP_RESERVED is not
// treated as a push.
func IsPushOnly(script []byte) bool {
	_, ok := PushedStack(script)
	return ok
}
