package gcc

import (
	"strings"

	"github.com/pattyshack/badc/compile/protocol"
)

var (
	keywords = map[string]struct{}{}
)

func init() {
	for _, keyword := range strings.Fields(`
		auto break case char const continue default do double else enum
		extern float for goto if inline int long register restrict return
		short signed sizeof static struct switch typedef union unsigned void
		volatile while _Alignas _Alignof _Atomic _Bool _Complex _Generic
		_Imaginary _Noreturn _Static_assert _Thread_local
		asm typeof __asm__ __attribute__ __auto_type __const __extension__
		__inline __inline__ __restrict __restrict__ __typeof__ __volatile__
		__int128 __label__ __alignof__ __real__ __imag__ __func__
		__FUNCTION__ __PRETTY_FUNCTION__
		alignas alignof and and_eq bitand bitor bool catch char16_t char32_t
		char8_t class compl concept consteval constexpr constinit const_cast
		co_await co_return co_yield decltype delete dynamic_cast explicit
		export false friend mutable namespace new noexcept not not_eq nullptr
		operator or or_eq private protected public reinterpret_cast requires
		static_assert static_cast template this thread_local throw true try
		typeid typename using virtual wchar_t xor xor_eq`) {

		keywords[keyword] = struct{}{}
	}
}

type identifier struct {
	name    string
	request protocol.OracleRequest
}

func isIdentifierStart(char byte) bool {
	return char == '_' ||
		('a' <= char && char <= 'z') ||
		('A' <= char && char <= 'Z') ||
		char == '$'
}

func isIdentifierChar(char byte) bool {
	return isIdentifierStart(char) || ('0' <= char && char <= '9')
}

// isInternalName returns true for names the generated program declares
// itself.
func isInternalName(name string) bool {
	return strings.HasPrefix(name, "__gdb") ||
		strings.HasPrefix(name, "__builtin") ||
		name == protocol.WrapperFunctionName ||
		name == protocol.RegisterArgName
}

type scanner struct {
	source  string
	pos     int
	isCPlus bool

	seen   map[identifier]struct{}
	result []identifier

	// The previous significant token.
	previous string
}

// scanIdentifiers returns the (unique) identifiers the code refers to which
// may need declarations, in order of first use.  Member names (after '.' or
// '->') are skipped, as are keywords and names the generated program
// declares.
func scanIdentifiers(source string, isCPlus bool) []identifier {
	scanner := &scanner{
		source:  source,
		isCPlus: isCPlus,
		seen:    map[identifier]struct{}{},
	}
	scanner.scan()
	return scanner.result
}

func (scanner *scanner) peek(offset int) byte {
	if scanner.pos+offset >= len(scanner.source) {
		return 0
	}
	return scanner.source[scanner.pos+offset]
}

func (scanner *scanner) skipLine() {
	for scanner.pos < len(scanner.source) {
		if scanner.source[scanner.pos] == '\\' && scanner.peek(1) == '\n' {
			scanner.pos += 2
			continue
		}
		if scanner.source[scanner.pos] == '\n' {
			return
		}
		scanner.pos++
	}
}

func (scanner *scanner) skipQuoted(quote byte) {
	scanner.pos++ // opening quote
	for scanner.pos < len(scanner.source) {
		char := scanner.source[scanner.pos]
		if char == '\\' {
			scanner.pos += 2
			continue
		}

		scanner.pos++
		if char == quote || char == '\n' {
			return
		}
	}
}

func (scanner *scanner) scan() {
	atLineStart := true
	for scanner.pos < len(scanner.source) {
		char := scanner.source[scanner.pos]

		switch {
		case char == '\n':
			atLineStart = true
			scanner.pos++
			continue

		case char == ' ' || char == '\t' || char == '\r':
			scanner.pos++
			continue

		case char == '#' && atLineStart:
			// Preprocessor directives
			scanner.skipLine()
			continue

		case char == '/' && scanner.peek(1) == '/':
			scanner.skipLine()
			continue

		case char == '/' && scanner.peek(1) == '*':
			end := strings.Index(scanner.source[scanner.pos+2:], "*/")
			if end < 0 {
				scanner.pos = len(scanner.source)
			} else {
				scanner.pos += end + 4
			}
			continue
		}

		atLineStart = false

		switch {
		case char == '"' || char == '\'':
			scanner.skipQuoted(char)
			scanner.previous = "literal"

		case '0' <= char && char <= '9' ||
			char == '.' && '0' <= scanner.peek(1) && scanner.peek(1) <= '9':

			// Numbers, including suffixes and exponents.
			for scanner.pos < len(scanner.source) &&
				(isIdentifierChar(scanner.source[scanner.pos]) ||
					scanner.source[scanner.pos] == '.') {

				scanner.pos++
			}
			scanner.previous = "literal"

		case isIdentifierStart(char):
			scanner.scanIdentifier()

		case char == '-' && scanner.peek(1) == '>':
			scanner.pos += 2
			scanner.previous = "->"

		case char == ':' && scanner.peek(1) == ':':
			scanner.pos += 2
			scanner.previous = "::"

		default:
			scanner.pos++
			scanner.previous = string(char)
		}
	}
}

func (scanner *scanner) readName() string {
	start := scanner.pos
	for scanner.pos < len(scanner.source) &&
		isIdentifierChar(scanner.source[scanner.pos]) {

		scanner.pos++
	}
	return scanner.source[start:scanner.pos]
}

// nextIs skips horizontal space and returns true if the next token
// starts with prefix.
func (scanner *scanner) nextIs(prefix string) bool {
	pos := scanner.pos
	for pos < len(scanner.source) &&
		(scanner.source[pos] == ' ' || scanner.source[pos] == '\t') {

		pos++
	}

	if strings.HasPrefix(scanner.source[pos:], prefix) {
		scanner.pos = pos
		return true
	}
	return false
}

func (scanner *scanner) scanIdentifier() {
	previous := scanner.previous
	name := scanner.readName()

	// Join qualified c++ names.
	if scanner.isCPlus {
		for {
			save := scanner.pos
			if !scanner.nextIs("::") {
				break
			}
			scanner.pos += 2

			if !scanner.nextIs("") ||
				scanner.pos >= len(scanner.source) ||
				!isIdentifierStart(scanner.source[scanner.pos]) {

				scanner.pos = save
				break
			}

			name += "::" + scanner.readName()
		}
	}

	scanner.previous = name

	if previous == "." || previous == "->" {
		return
	}

	// Leading :: refers to the global namespace.
	if previous == "::" && !strings.Contains(name, "::") {
		previous = ""
	}

	_, isKeyword := keywords[name]
	if isKeyword || isInternalName(name) {
		return
	}

	request := protocol.OracleSymbol
	switch previous {
	case "struct", "union", "enum", "class":
		request = protocol.OracleTag
	case "goto":
		request = protocol.OracleLabel
	}

	ident := identifier{name: name, request: request}
	_, ok := scanner.seen[ident]
	if ok {
		return
	}
	scanner.seen[ident] = struct{}{}
	scanner.result = append(scanner.result, ident)
}
