package requist

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// HashAlgorithm selects how the canonical request string is reduced to a key.
type HashAlgorithm string

const (
	// HashXX64 uses xxHash64, a fast non-cryptographic 64-bit hash. Default.
	HashXX64 HashAlgorithm = "xxhash64"
	// HashFNV32a uses 32-bit FNV-1a from the standard library.
	HashFNV32a HashAlgorithm = "fnv32a"
	// HashFNV64a uses 64-bit FNV-1a from the standard library.
	HashFNV64a HashAlgorithm = "fnv64a"
	// HashSHA256 uses SHA-256 for collision-averse keys.
	HashSHA256 HashAlgorithm = "sha256"
	// HashNone skips hashing and uses the canonical string directly.
	HashNone HashAlgorithm = "none"
)

// DefaultHashAlgorithm is applied when KeyConfig.HashAlgorithm is empty.
const DefaultHashAlgorithm = HashXX64

func (a HashAlgorithm) supported() bool {
	switch a {
	case HashXX64, HashFNV32a, HashFNV64a, HashSHA256, HashNone:
		return true
	default:
		return false
	}
}

// KeyConfig controls cache key derivation.
type KeyConfig struct {
	// IncludeHeaders names the headers that participate in the key,
	// matched case-insensitively. Ignored when IncludeAllHeaders is set.
	IncludeHeaders []string
	// IncludeAllHeaders makes every header participate in the key.
	IncludeAllHeaders bool
	// MaxKeyLength truncates the final key (after hashing). 0 = unbounded.
	MaxKeyLength int
	// HashAlgorithm selects the hash; empty means DefaultHashAlgorithm.
	HashAlgorithm HashAlgorithm
	// EnableHashCache memoizes keys per descriptor instance. Purely a
	// performance optimization: distinct but structurally equal descriptors
	// are not required to share a memo slot.
	EnableHashCache bool
}

// Validate checks the config without doing any key work.
func (c KeyConfig) Validate() error {
	if c.HashAlgorithm != "" && !c.HashAlgorithm.supported() {
		return newValidationError(CodeInvalidHashAlgorithm,
			fmt.Sprintf("unsupported hash algorithm %q", c.HashAlgorithm))
	}
	for _, name := range c.IncludeHeaders {
		if strings.TrimSpace(name) == "" {
			return newValidationError(CodeInvalidHeaders, "header names must be non-empty")
		}
	}
	return nil
}

type memoizedKey struct {
	configSig string
	key       string
}

// KeyGenerator deterministically derives string keys from request
// descriptors. Safe for concurrent use.
type KeyGenerator struct {
	memo sync.Map // *RequestDescriptor -> memoizedKey
}

// NewKeyGenerator returns a key generator with an empty memo table.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// GenerateKey derives a key for the descriptor. It is pure and deterministic
// for identical (descriptor, config) pairs: header order never matters, only
// selected headers participate, and truncation happens after hashing so it
// never changes which inputs collide. Cyclic body data degrades to a
// reduced-fidelity key built from method, URL and query only.
func (g *KeyGenerator) GenerateKey(d *RequestDescriptor, cfg KeyConfig) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	if d == nil {
		return "", newValidationError(CodeInvalidHeaders, "request descriptor must not be nil")
	}

	algorithm := cfg.HashAlgorithm
	if algorithm == "" {
		algorithm = DefaultHashAlgorithm
	}

	configSig := keyConfigSignature(cfg, algorithm)
	if cfg.EnableHashCache {
		if v, ok := g.memo.Load(d); ok {
			if m := v.(memoizedKey); m.configSig == configSig {
				return m.key, nil
			}
		}
	}

	canonical, cyclic := canonicalRequestString(d, cfg)
	if cyclic {
		canonical = reducedCanonicalString(d)
	}

	key := hashCanonical(canonical, algorithm)
	if cfg.MaxKeyLength > 0 && len(key) > cfg.MaxKeyLength {
		key = key[:cfg.MaxKeyLength]
	}

	if cfg.EnableHashCache {
		g.memo.Store(d, memoizedKey{configSig: configSig, key: key})
	}

	return key, nil
}

// ForgetDescriptor drops the memoized key for a descriptor instance.
func (g *KeyGenerator) ForgetDescriptor(d *RequestDescriptor) {
	g.memo.Delete(d)
}

func keyConfigSignature(cfg KeyConfig, algorithm HashAlgorithm) string {
	names := make([]string, len(cfg.IncludeHeaders))
	for i, n := range cfg.IncludeHeaders {
		names[i] = strings.ToLower(n)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s|%t|%d|%s", algorithm, cfg.IncludeAllHeaders, cfg.MaxKeyLength, strings.Join(names, ","))
}

// canonicalRequestString builds the deterministic pre-hash representation of
// a descriptor. The second return reports whether cyclic body data was seen.
func canonicalRequestString(d *RequestDescriptor, cfg KeyConfig) (string, bool) {
	var b strings.Builder
	b.WriteString(strings.ToUpper(d.Method))
	b.WriteByte('|')
	b.WriteString(d.URL)
	b.WriteByte('|')
	writeSortedMap(&b, d.Query, nil)
	b.WriteByte('|')
	writeSortedMap(&b, d.Headers, headerFilter(cfg))
	b.WriteByte('|')

	s := &valueSerializer{seen: make(map[uintptr]bool)}
	b.WriteString(s.serialize(reflect.ValueOf(d.Body)))
	return b.String(), s.cyclic
}

func reducedCanonicalString(d *RequestDescriptor) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(d.Method))
	b.WriteByte('|')
	b.WriteString(d.URL)
	b.WriteByte('|')
	writeSortedMap(&b, d.Query, nil)
	b.WriteString("|cyclic")
	return b.String()
}

// headerFilter returns a predicate selecting headers for the key, or nil when
// no header participates.
func headerFilter(cfg KeyConfig) func(string) bool {
	if cfg.IncludeAllHeaders {
		return func(string) bool { return true }
	}
	if len(cfg.IncludeHeaders) == 0 {
		return func(string) bool { return false }
	}
	allowed := make(map[string]bool, len(cfg.IncludeHeaders))
	for _, name := range cfg.IncludeHeaders {
		allowed[strings.ToLower(name)] = true
	}
	return func(name string) bool { return allowed[strings.ToLower(name)] }
}

func writeSortedMap(b *strings.Builder, m map[string]string, filter func(string) bool) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if filter == nil || filter(k) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(strings.ToLower(k))
		b.WriteByte('=')
		b.WriteString(m[k])
	}
}

func hashCanonical(canonical string, algorithm HashAlgorithm) string {
	switch algorithm {
	case HashXX64:
		return strconv.FormatUint(xxhash.Sum64String(canonical), 16)
	case HashFNV32a:
		h := fnv.New32a()
		h.Write([]byte(canonical))
		return strconv.FormatUint(uint64(h.Sum32()), 16)
	case HashFNV64a:
		h := fnv.New64a()
		h.Write([]byte(canonical))
		return strconv.FormatUint(h.Sum64(), 16)
	case HashSHA256:
		sum := sha256.Sum256([]byte(canonical))
		return fmt.Sprintf("%x", sum)
	default: // HashNone
		return canonical
	}
}

// valueSerializer renders arbitrary body data into a deterministic string.
// Map keys are sorted, struct fields are walked in declaration order, and
// pointers already on the path mark the result as cyclic.
type valueSerializer struct {
	seen   map[uintptr]bool
	cyclic bool
}

func (s *valueSerializer) serialize(rv reflect.Value) string {
	if !rv.IsValid() {
		return "nil"
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serialize(rv.Elem())

	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		addr := rv.Pointer()
		if s.seen[addr] {
			s.cyclic = true
			return "cycle"
		}
		s.seen[addr] = true
		out := s.serialize(rv.Elem())
		delete(s.seen, addr)
		return out

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		addr := rv.Pointer()
		if s.seen[addr] {
			s.cyclic = true
			return "cycle"
		}
		s.seen[addr] = true
		out := s.serializeList(rv, "slice")
		delete(s.seen, addr)
		return out

	case reflect.Array:
		return s.serializeList(rv, "array")

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		addr := rv.Pointer()
		if s.seen[addr] {
			s.cyclic = true
			return "cycle"
		}
		s.seen[addr] = true
		out := s.serializeMap(rv)
		delete(s.seen, addr)
		return out

	case reflect.Struct:
		return s.serializeStruct(rv)

	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("%s:%p", rv.Kind(), rv.Interface())

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return fmt.Sprintf("%v", rv.Interface())

	default:
		return s.jsonFallback(rv)
	}
}

func (s *valueSerializer) serializeList(rv reflect.Value, kind string) string {
	length := rv.Len()
	parts := make([]string, length)
	for i := 0; i < length; i++ {
		parts[i] = s.serialize(rv.Index(i))
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ","))
}

func (s *valueSerializer) serializeMap(rv reflect.Value) string {
	keys := rv.MapKeys()
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = s.serialize(k) + "=" + s.serialize(rv.MapIndex(k))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s *valueSerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serialize(rv.Field(i)))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func (s *valueSerializer) jsonFallback(rv reflect.Value) string {
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return "fallback:" + rv.Type().String()
	}
	return "json:" + string(data)
}
