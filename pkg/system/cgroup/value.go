package cgroup

import (
	"encoding/json"
	"sort"
)

// Kind identifies the grammar a control file is written in, and with it
// the shape of the Value parsed from it.
type Kind uint8

const (
	KindUndefined  Kind = iota // no value; what a delta reports without a previous sample
	KindInt                    // "1024"
	KindString                 // "THAWED"
	KindStat                   // "user 2978976\nsystem 1037760\n"
	KindDeviceStat             // "8:0 Read 72650752\n...\nTotal 100741120\n"
	KindNumaStat               // "total=83920 N0=83920\nfile=63452 N0=63452\n"
	KindPercpu                 // "836842800783 656015556351 "
	KindList                   // "a *:* rwm\nc 1:3 rwm\n"
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindStat:
		return "stat"
	case KindDeviceStat:
		return "device-stat"
	case KindNumaStat:
		return "numa-stat"
	case KindPercpu:
		return "percpu"
	case KindList:
		return "list"
	default:
		return "undefined"
	}
}

// Value is a parsed control file. The zero Value is undefined.
//
// Map-shaped kinds (stat, device-stat, numa-stat) keep their entries in m;
// nested entries are themselves Values so deltas can recurse uniformly.
type Value struct {
	kind Kind
	n    int64
	s    string
	m    map[string]Value
	cpus []int64
	list []string
}

func IntValue(n int64) Value     { return Value{kind: KindInt, n: n} }
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// StatValue builds a flat key→integer map.
func StatValue(m map[string]int64) Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = IntValue(v)
	}
	return Value{kind: KindStat, m: out}
}

// PercpuValue builds a per-CPU counter array.
func PercpuValue(cpus []int64) Value {
	c := make([]int64, len(cpus))
	copy(c, cpus)
	return Value{kind: KindPercpu, cpus: c}
}

// ListValue builds an ordered list of raw entries.
func ListValue(entries []string) Value {
	l := make([]string, len(entries))
	copy(l, entries)
	return Value{kind: KindList, list: l}
}

func mapValue(kind Kind, m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: kind, m: m}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) Defined() bool { return v.kind != KindUndefined }

func (v Value) isMap() bool {
	return v.kind == KindStat || v.kind == KindDeviceStat || v.kind == KindNumaStat
}

// Int returns the integer of an int value.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.n, true
}

// Str returns the text of a string value.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Get returns one entry of a map-shaped value.
func (v Value) Get(key string) (Value, bool) {
	if !v.isMap() {
		return Value{}, false
	}
	e, ok := v.m[key]
	return e, ok
}

// Keys returns the sorted entry names of a map-shaped value.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Percpu returns a copy of the per-CPU counters.
func (v Value) Percpu() []int64 {
	if v.kind != KindPercpu {
		return nil
	}
	c := make([]int64, len(v.cpus))
	copy(c, v.cpus)
	return c
}

// List returns a copy of the list entries.
func (v Value) List() []string {
	if v.kind != KindList {
		return nil
	}
	l := make([]string, len(v.list))
	copy(l, v.list)
	return l
}

// Len is the number of entries of a collection value and 0 otherwise.
func (v Value) Len() int {
	switch {
	case v.isMap():
		return len(v.m)
	case v.kind == KindPercpu:
		return len(v.cpus)
	case v.kind == KindList:
		return len(v.list)
	}
	return 0
}

// IsZero reports whether every numeric leaf is zero and every collection empty.
func (v Value) IsZero() bool {
	switch v.kind {
	case KindInt:
		return v.n == 0
	case KindString:
		return v.s == ""
	case KindPercpu:
		for _, c := range v.cpus {
			if c != 0 {
				return false
			}
		}
		return true
	case KindList:
		return len(v.list) == 0
	case KindStat, KindDeviceStat, KindNumaStat:
		for _, e := range v.m {
			if !e.IsZero() {
				return false
			}
		}
		return true
	}
	return true
}

// Equal compares kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindPercpu:
		if len(v.cpus) != len(o.cpus) {
			return false
		}
		for i := range v.cpus {
			if v.cpus[i] != o.cpus[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case KindStat, KindDeviceStat, KindNumaStat:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return true
}

// Interface converts the value into plain Go data: int64, string,
// map[string]any, []int64, []string, or nil when undefined.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.n
	case KindString:
		return v.s
	case KindPercpu:
		return v.Percpu()
	case KindList:
		return v.List()
	case KindStat, KindDeviceStat, KindNumaStat:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Interface()) }

func (v Value) MarshalYAML() (any, error) { return v.Interface(), nil }

// Subtract computes cur−prev over numeric leaves. Integers missing from prev
// become undefined, so a counter that just appeared never yields a made-up
// delta. Strings and lists are carried over from cur unchanged.
func Subtract(cur, prev Value) Value {
	switch cur.kind {
	case KindInt:
		if prev.kind != KindInt {
			return Value{}
		}
		return IntValue(cur.n - prev.n)
	case KindPercpu:
		if prev.kind != KindPercpu || len(prev.cpus) != len(cur.cpus) {
			return Value{}
		}
		d := make([]int64, len(cur.cpus))
		for i := range cur.cpus {
			d[i] = cur.cpus[i] - prev.cpus[i]
		}
		return Value{kind: KindPercpu, cpus: d}
	case KindStat, KindDeviceStat, KindNumaStat:
		if !prev.isMap() {
			return Value{}
		}
		out := make(map[string]Value, len(cur.m))
		for k, e := range cur.m {
			out[k] = Subtract(e, prev.m[k])
		}
		return mapValue(cur.kind, out)
	}
	return cur
}

// Stats maps unprefixed control-file names to their parsed values.
type Stats map[string]Value

// Lookup walks nested map values, e.g. Lookup("stat", "rss").
func (s Stats) Lookup(name string, keys ...string) (Value, bool) {
	v, ok := s[name]
	if !ok {
		return Value{}, false
	}
	for _, k := range keys {
		if v, ok = v.Get(k); !ok {
			return Value{}, false
		}
	}
	return v, true
}

// Int is Lookup for integer leaves.
func (s Stats) Int(name string, keys ...string) (int64, bool) {
	v, ok := s.Lookup(name, keys...)
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Delta subtracts prev field by field. With no previous snapshot every
// field is undefined.
func (s Stats) Delta(prev Stats) Stats {
	out := make(Stats, len(s))
	for name, v := range s {
		if prev == nil {
			out[name] = Value{}
			continue
		}
		out[name] = Subtract(v, prev[name])
	}
	return out
}

// Names returns the sorted field names.
func (s Stats) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
