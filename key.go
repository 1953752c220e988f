package taskcoord

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// Key is an identity value with set-semantic composition: internally, a
// non-empty set of atoms drawn from {signed integer, 64-bit integer,
// boolean, string, type-identity, arbitrary hashable}. Two Keys are equal
// iff their atom sets are equal, irrespective of insertion order - see
// [Key.Combine].
//
// Keys are immutable and comparable (usable as a Go map key, and with ==),
// which [KeyedTaskManager] relies on directly.
type Key struct {
	// digest is the canonical, sorted, deduplicated, '\x1f'-joined
	// concatenation of this Key's atom tokens. Each atom kind uses a
	// distinct single-byte prefix (see tokenXxx below) so atoms of
	// different kinds never collide on the same token, and the set union
	// performed by Combine is exactly string-set union over tokens.
	digest string
}

const tokenSep = "\x1f"

func keyFromTokens(tokens ...string) Key {
	return Key{digest: canonicalizeTokens(tokens)}
}

func canonicalizeTokens(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	sorted := slices.Clone(tokens)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, tokenSep)
}

func (k Key) tokens() []string {
	if k.digest == "" {
		return nil
	}
	return strings.Split(k.digest, tokenSep)
}

// Combine returns a Key whose atoms are the union of k's and other's atoms.
// Combining a Key with itself, or with a Key whose atoms are a subset of
// k's, yields a Key equal to k.
func (k Key) Combine(other Key) Key {
	if k.digest == other.digest {
		return k
	}
	return keyFromTokens(append(k.tokens(), other.tokens()...)...)
}

// Equal reports whether k and other have equal atom sets.
func (k Key) Equal(other Key) bool {
	return k.digest == other.digest
}

// String returns a debug representation of k. It is not part of the atom
// encoding contract and must not be parsed.
func (k Key) String() string {
	if k.digest == "" {
		return "Key()"
	}
	return "Key(" + strings.Join(k.tokens(), ",") + ")"
}

// atom token constructors - each is namespaced by a single-byte kind prefix
// so distinct kinds never collide, even when their formatted values would
// otherwise look alike (e.g. IntKey(5) vs StringKey("5")).

func tokenInt(v int) string          { return "i:" + strconv.Itoa(v) }
func tokenInt64(v int64) string      { return "I:" + strconv.FormatInt(v, 10) }
func tokenBool(v bool) string        { return "b:" + strconv.FormatBool(v) }
func tokenString(v string) string    { return "s:" + strconv.Quote(v) }
func tokenType(t reflect.Type) string {
	if t == nil {
		return "t:<nil>"
	}
	return "t:" + t.String()
}

// tokenHashable formats an arbitrary comparable value. Distinct values whose
// %#v representation collides (rare, and not possible for any value
// produced by this package's own constructors) would be treated as equal
// atoms; callers relying on [HashableKey] for values without a meaningful
// textual representation should prefer [TypeKey] or a dedicated atom kind.
func tokenHashable(v any) string { return fmt.Sprintf("a:%#v", v) }

// IntKey returns a Key with a single signed-integer atom.
func IntKey(v int) Key { return keyFromTokens(tokenInt(v)) }

// Int64Key returns a Key with a single 64-bit integer atom.
func Int64Key(v int64) Key { return keyFromTokens(tokenInt64(v)) }

// BoolKey returns a Key with a single boolean atom.
func BoolKey(v bool) Key { return keyFromTokens(tokenBool(v)) }

// StringKey returns a Key with a single string atom.
func StringKey(v string) Key { return keyFromTokens(tokenString(v)) }

// TypeKey returns a Key with a single atom identifying v's dynamic type. A
// nil v produces a Key identifying the untyped nil.
func TypeKey(v any) Key { return keyFromTokens(tokenType(reflect.TypeOf(v))) }

// HashableKey returns a Key with a single atom wrapping an arbitrary
// comparable value, for callers whose natural identity doesn't fit the
// other atom kinds.
func HashableKey(v any) Key { return keyFromTokens(tokenHashable(v)) }

var freshKeyCounter atomic.Uint64

// Fresh returns a Key whose atom set is a singleton containing a
// process-wide unique identifier. Every call returns a Key unequal to any
// previously or subsequently returned Key.
func Fresh() Key {
	return keyFromTokens(fmt.Sprintf("u:%d", freshKeyCounter.Add(1)))
}

// SourceLocation returns a Key derived from a call-site file, line, and
// column, suitable for keying work by the place in the code that submitted
// it.
func SourceLocation(file string, line, column int) Key {
	return keyFromTokens(fmt.Sprintf("l:%s:%d:%d", file, line, column))
}
