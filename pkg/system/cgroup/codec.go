package cgroup

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type parser func(text string) (Value, error)

var parsers = map[Kind]parser{
	KindInt:        parseInt,
	KindString:     parseString,
	KindStat:       parseSimpleStat,
	KindDeviceStat: parseDeviceStat,
	KindNumaStat:   parseNumaStat,
	KindPercpu:     parsePercpu,
	KindList:       parseList,
}

// Parse converts raw control-file text into a Value of the given kind.
// Malformed input yields a *FormatError naming the offending line.
func Parse(kind Kind, text string) (Value, error) {
	p, ok := parsers[kind]
	if !ok {
		return Value{}, errors.Errorf("cgroup: no parser for %s", kind)
	}
	return p(text)
}

// Encode serializes a value for writing. Each returned chunk must be
// written separately: the kernel accepts one rule per write for
// list-shaped files such as blkio.throttle.read_bps_device.
func Encode(v Value) ([]string, error) {
	switch v.kind {
	case KindInt:
		return []string{strconv.FormatInt(v.n, 10)}, nil
	case KindString:
		return []string{v.s}, nil
	case KindList:
		return v.List(), nil
	}
	return nil, errors.Wrapf(ErrNotEncodable, "%s value", v.kind)
}

// lines splits text into non-blank lines.
func lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func parseInteger(line, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Counters such as memory.limit_in_bytes may exceed int64 on some
		// kernels; saturate instead of failing the whole file.
		if u, uerr := strconv.ParseUint(s, 10, 64); uerr == nil && u > 1<<63-1 {
			return 1<<63 - 1, nil
		}
		return 0, formatErr(line, err)
	}
	return n, nil
}

func parseInt(text string) (Value, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Value{}, formatErr(text, errors.New("empty integer"))
	}
	n, err := parseInteger(s, s)
	if err != nil {
		return Value{}, err
	}
	return IntValue(n), nil
}

func parseString(text string) (Value, error) {
	return StringValue(strings.TrimSpace(text)), nil
}

// "user 2978976\nsystem 1037760\n"
func parseSimpleStat(text string) (Value, error) {
	m := map[string]Value{}
	for _, line := range lines(text) {
		fs := strings.Fields(line)
		if len(fs) != 2 {
			return Value{}, formatErr(line, errors.Errorf("want 2 fields, got %d", len(fs)))
		}
		n, err := parseInteger(line, fs[1])
		if err != nil {
			return Value{}, err
		}
		m[fs[0]] = IntValue(n)
	}
	return mapValue(KindStat, m), nil
}

// "8:0 Read 72650752\n8:0 Write 28090368\nTotal 100741120\n"
//
// Three-token lines aggregate per device, two-token lines land in the flat part.
func parseDeviceStat(text string) (Value, error) {
	m := map[string]Value{}
	for _, line := range lines(text) {
		fs := strings.Fields(line)
		switch len(fs) {
		case 3:
			n, err := parseInteger(line, fs[2])
			if err != nil {
				return Value{}, err
			}
			dev, ok := m[fs[0]]
			if !ok || dev.kind != KindStat {
				dev = mapValue(KindStat, nil)
				m[fs[0]] = dev
			}
			dev.m[fs[1]] = IntValue(n)
		case 2:
			n, err := parseInteger(line, fs[1])
			if err != nil {
				return Value{}, err
			}
			m[fs[0]] = IntValue(n)
		default:
			return Value{}, formatErr(line, errors.Errorf("want 2 or 3 fields, got %d", len(fs)))
		}
	}
	return mapValue(KindDeviceStat, m), nil
}

// "total=83920 N0=83920\n" (older kernels) or "total 83920 N0=83920\n".
func parseNumaStat(text string) (Value, error) {
	m := map[string]Value{}
	for _, line := range lines(text) {
		fs := strings.Fields(line)
		if len(fs) < 2 {
			return Value{}, formatErr(line, errors.New("no per-node entries"))
		}
		name, rest := fs[0], fs[1:]
		entry := map[string]Value{}
		if k, v, ok := strings.Cut(name, "="); ok {
			n, err := parseInteger(line, v)
			if err != nil {
				return Value{}, err
			}
			name = k
			entry["total"] = IntValue(n)
		}
		for _, kv := range rest {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return Value{}, formatErr(line, errors.Errorf("bad entry %q", kv))
			}
			n, err := parseInteger(line, v)
			if err != nil {
				return Value{}, err
			}
			entry[k] = IntValue(n)
		}
		m[name] = mapValue(KindStat, entry)
	}
	return mapValue(KindNumaStat, m), nil
}

// "836842800783 656015556351 "
func parsePercpu(text string) (Value, error) {
	fs := strings.Fields(text)
	cpus := make([]int64, 0, len(fs))
	for _, f := range fs {
		n, err := parseInteger(strings.TrimSpace(text), f)
		if err != nil {
			return Value{}, err
		}
		cpus = append(cpus, n)
	}
	return Value{kind: KindPercpu, cpus: cpus}, nil
}

func parseList(text string) (Value, error) {
	ls := lines(text)
	if ls == nil {
		ls = []string{}
	}
	return Value{kind: KindList, list: ls}, nil
}

// parsePids reads cgroup.procs / tasks content. On a malformed line it
// returns the pids parsed before it together with the FormatError.
func parsePids(text string) ([]int, error) {
	ls := lines(text)
	pids := make([]int, 0, len(ls))
	for _, l := range ls {
		pid, err := strconv.Atoi(strings.TrimSpace(l))
		if err != nil {
			return pids, formatErr(l, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}
