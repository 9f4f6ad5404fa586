package script

// Value is the portable representation of a script value, safe to hold
// outside any Lua state and to move between worker states. Concrete types:
// nil, bool, float64, string, *Table, *Closure, Builtin.
type Value any

// Table is the portable form of a Lua table: a contiguous array part plus a
// string-keyed hash part. Integer keys beyond the array part are carried in
// the hash part under their decimal representation.
type Table struct {
	Arr []Value
	Map map[string]Value
}

// NewTable returns an empty table value.
func NewTable() *Table {
	return &Table{Map: map[string]Value{}}
}

// Get returns the hash-part entry for key, or nil.
func (t *Table) Get(key string) Value {
	if t == nil || t.Map == nil {
		return nil
	}
	return t.Map[key]
}

// Set stores a hash-part entry.
func (t *Table) Set(key string, v Value) {
	if t.Map == nil {
		t.Map = map[string]Value{}
	}
	t.Map[key] = v
}

// Append adds v to the array part.
func (t *Table) Append(v Value) {
	t.Arr = append(t.Arr, v)
}

// GetString returns the hash-part entry for key if it is a string.
func (t *Table) GetString(key string) (string, bool) {
	s, ok := t.Get(key).(string)
	return s, ok
}

// GetTable returns the hash-part entry for key if it is a table.
func (t *Table) GetTable(key string) (*Table, bool) {
	sub, ok := t.Get(key).(*Table)
	return sub, ok
}

// Strings returns the array part as a string slice. The second return is
// false if any element is not a string.
func (t *Table) Strings() ([]string, bool) {
	if t == nil {
		return nil, true
	}
	out := make([]string, 0, len(t.Arr))
	for _, v := range t.Arr {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Builtin is a reference to an engine-provided native function. Builtins are
// identified by name so a reference extracted from one state can be resolved
// against another state's own instance of the same function.
type Builtin struct {
	Name string
}
