// Package kopts parses the kernel options string handed over by the boot
// collaborator. Options are whitespace-separated tokens of the form `key`,
// `key=value` or `key="quoted value"`. Invalid values are warned about once
// and treated as unset, never as a boot failure.
package kopts

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Options is the parsed, immutable option set.
type Options struct {
	values map[string]optValue

	mu     sync.Mutex
	warned map[string]struct{}
	warnf  func(format string, args ...interface{})
}

type optValue struct {
	val   string
	isSet bool // false for bare flags like `notrack`
}

// Parse parses an options string. Parsing never fails; malformed trailing
// input is kept as bare keys.
func Parse(s string) *Options {
	o := &Options{
		values: make(map[string]optValue),
		warned: make(map[string]struct{}),
		warnf:  func(string, ...interface{}) {},
	}

	s = strings.TrimLeft(s, " \t\r\n")
	for s != "" {
		keyEnd := strings.IndexFunc(s, func(r rune) bool {
			return r == '=' || r == ' ' || r == '\t' || r == '\r' || r == '\n'
		})
		if keyEnd < 0 {
			keyEnd = len(s)
		}
		key := s[:keyEnd]
		s = s[keyEnd:]

		if strings.HasPrefix(s, "=") {
			s = s[1:]
			var val string
			if len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
				quote := s[0]
				s = s[1:]
				end := strings.IndexByte(s, quote)
				if end < 0 {
					end = len(s)
				}
				val = s[:end]
				if end < len(s) {
					s = s[end+1:]
				} else {
					s = ""
				}
			} else {
				end := strings.IndexAny(s, " \t\r\n")
				if end < 0 {
					end = len(s)
				}
				val = s[:end]
				s = s[end:]
			}
			if key != "" {
				o.values[key] = optValue{val: val, isSet: true}
			}
		} else if key != "" {
			o.values[key] = optValue{}
		}

		s = strings.TrimLeft(s, " \t\r\n")
	}
	return o
}

// SetWarnFunc installs the sink for invalid-value warnings. Warnings for a
// given key are emitted at most once.
func (o *Options) SetWarnFunc(fn func(format string, args ...interface{})) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warnf = fn
}

func (o *Options) warnInvalidOnce(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, done := o.warned[key]; done {
		return
	}
	o.warned[key] = struct{}{}
	o.warnf("invalid value given for option %q", key)
}

// Has reports whether the key was present at all.
func (o *Options) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// String returns the value of key. ok is false if the key is absent or was
// given as a bare flag.
func (o *Options) String(key string) (string, bool) {
	v, ok := o.values[key]
	if !ok || !v.isSet {
		return "", false
	}
	return v.val, true
}

// Flag returns the boolean value of key. A bare key counts as true. An
// unparseable value warns once and reads as unset.
func (o *Options) Flag(key string) (val, ok bool) {
	v, present := o.values[key]
	if !present {
		return false, false
	}
	if !v.isSet {
		return true, true
	}
	switch v.val {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	default:
		o.warnInvalidOnce(key)
		return false, false
	}
}

// Uint returns the unsigned integer value of key. An unparseable value
// warns once and reads as unset.
func (o *Options) Uint(key string) (uint64, bool) {
	v, present := o.values[key]
	if !present || !v.isSet {
		return 0, false
	}
	n, err := strconv.ParseUint(v.val, 10, 64)
	if err != nil {
		o.warnInvalidOnce(key)
		return 0, false
	}
	return n, true
}

// Group returns the sub-keys and values of every option named
// `group.<sub>`, for option families like `log.<subsystem>=<level>`.
func (o *Options) Group(group string) map[string]string {
	prefix := group + "."
	out := make(map[string]string)
	for k, v := range o.values {
		if strings.HasPrefix(k, prefix) && v.isSet {
			out[k[len(prefix):]] = v.val
		}
	}
	return out
}

// String renders the option set for diagnostics, in unspecified order.
func (o *Options) DebugString() string {
	parts := make([]string, 0, len(o.values))
	for k, v := range o.values {
		if v.isSet {
			parts = append(parts, fmt.Sprintf("%s=%q", k, v.val))
		} else {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, " ")
}
