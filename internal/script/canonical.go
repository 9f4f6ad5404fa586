package script

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"

	lua "github.com/yuin/gopher-lua"
)

// Digest returns the SHA-256 hex digest of v's canonical encoding. The
// encoding is deterministic: table keys are visited in sorted order and
// numbers use the shortest round-trippable decimal form, so structurally
// equal values always digest equal.
func Digest(v Value) string {
	h := sha256.New()
	encodeValue(h, v)
	return hex.EncodeToString(h.Sum(nil))
}

// DigestClosures digests a sequence of closures. Used for action-body
// fingerprints: any edit to a function's bytecode, constants, or captured
// values changes the digest.
func DigestClosures(closures []*Closure) string {
	h := sha256.New()
	for _, c := range closures {
		encodeClosure(h, c)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func encodeValue(w io.Writer, v Value) {
	switch val := v.(type) {
	case nil:
		io.WriteString(w, "z;")
	case bool:
		if val {
			io.WriteString(w, "b1;")
		} else {
			io.WriteString(w, "b0;")
		}
	case float64:
		io.WriteString(w, "n:")
		io.WriteString(w, strconv.FormatFloat(val, 'g', -1, 64))
		io.WriteString(w, ";")
	case int:
		encodeValue(w, float64(val))
	case string:
		fmt.Fprintf(w, "s%d:", len(val))
		io.WriteString(w, val)
		io.WriteString(w, ";")
	case Builtin:
		io.WriteString(w, "g:")
		io.WriteString(w, val.Name)
		io.WriteString(w, ";")
	case *Closure:
		encodeClosure(w, val)
	case *Table:
		io.WriteString(w, "t[")
		for _, el := range val.Arr {
			encodeValue(w, el)
		}
		io.WriteString(w, "]{")
		keys := make([]string, 0, len(val.Map))
		for k := range val.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "k%d:%s=", len(k), k)
			encodeValue(w, val.Map[k])
		}
		io.WriteString(w, "}")
	default:
		fmt.Fprintf(w, "?%T;", v)
	}
}

func encodeClosure(w io.Writer, c *Closure) {
	io.WriteString(w, "f(")
	encodeProto(w, c.Proto)
	for _, uv := range c.Upvalues {
		encodeValue(w, uv)
	}
	io.WriteString(w, ")")
}

// encodeProto hashes the compiled function body: parameter shape, bytecode,
// constants, and nested prototypes. Source file name and line positions are
// deliberately excluded so moving a function without editing it does not
// change the digest.
func encodeProto(w io.Writer, p *lua.FunctionProto) {
	hdr := [3]byte{p.NumParameters, p.IsVarArg, p.NumUpvalues}
	w.Write(hdr[:])
	var buf [4]byte
	for _, ins := range p.Code {
		binary.LittleEndian.PutUint32(buf[:], ins)
		w.Write(buf[:])
	}
	for _, k := range p.Constants {
		switch kv := k.(type) {
		case lua.LString:
			fmt.Fprintf(w, "s%d:%s", len(kv), string(kv))
		case lua.LNumber:
			io.WriteString(w, strconv.FormatFloat(float64(kv), 'g', -1, 64))
		case lua.LBool:
			if kv {
				io.WriteString(w, "T")
			} else {
				io.WriteString(w, "F")
			}
		default:
			io.WriteString(w, "z")
		}
		io.WriteString(w, ";")
	}
	for _, nested := range p.FunctionPrototypes {
		encodeProto(w, nested)
	}
}
