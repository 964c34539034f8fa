package extraction

import (
	"encoding/json"
	"strings"
)

// Completion 是 CompleteJSON 的结果。
type Completion int

const (
	// JSONIncomplete 尚无可补全的内容，后续文本可能补上。
	JSONIncomplete Completion = iota
	// JSONCompleted 已补全为合法 JSON。
	JSONCompleted
	// JSONInvalid 追加任何文本都无法得到合法 JSON。
	JSONInvalid
)

func (c Completion) String() string {
	switch c {
	case JSONCompleted:
		return "completed"
	case JSONInvalid:
		return "invalid"
	default:
		return "incomplete"
	}
}

// CompleteJSON 把一段可能被截断的 JSON 文本补全为合法 JSON。
//
// 规则：去掉开头的 markdown 代码围栏与前导说明文字；闭合未结束的字符串、
// 数组与对象；无法补全的尾部（悬空的 key、逗号、冒号、半截字面量或转义）
// 回退到最近的安全位置后再闭合。顶层值结束后的内容被忽略。
//
// 括号不匹配，或顶层值已结束却不是合法 JSON 时返回 JSONInvalid。
func CompleteJSON(text string) (string, Completion) {
	body, ok := stripPreamble(text)
	if !ok {
		return "", JSONIncomplete
	}
	if body[0] != '{' && body[0] != '[' {
		// 顶层标量只有完整时才可用
		s := strings.TrimSpace(body)
		if json.Valid([]byte(s)) {
			return s, JSONCompleted
		}
		return "", JSONIncomplete
	}

	sc := scanPartial(body)
	if sc.invalid {
		return "", JSONInvalid
	}
	if sc.complete >= 0 {
		s := body[:sc.complete]
		if json.Valid([]byte(s)) {
			return s, JSONCompleted
		}
		return "", JSONInvalid
	}

	if c := sc.closeAtEnd(body); json.Valid([]byte(c)) {
		return c, JSONCompleted
	}
	for i := len(sc.safe) - 1; i >= 0; i-- {
		p := sc.safe[i]
		if c := body[:p.pos] + p.closers; json.Valid([]byte(c)) {
			return c, JSONCompleted
		}
	}
	return "", JSONIncomplete
}

// stripPreamble drops leading whitespace, a ```json fence line and any prose
// before the first bracket.
func stripPreamble(text string) (string, bool) {
	s := strings.TrimLeft(text, " \t\r\n\uFEFF")
	if strings.HasPrefix(s, "```") {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return "", false
		}
		s = strings.TrimLeft(s[nl+1:], " \t\r\n")
	}
	if s == "" {
		return "", false
	}
	if s[0] == '{' || s[0] == '[' {
		return s, true
	}
	if i := strings.IndexAny(s, "{["); i >= 0 {
		return s[i:], true
	}
	return s, true
}

type frame struct {
	closer  byte
	wantKey bool // object level: next string is a key
}

type safePoint struct {
	pos     int
	closers string
}

type partialScan struct {
	stack    []frame
	safe     []safePoint
	complete int // end of the top-level value, or -1
	invalid  bool

	inString bool
	isKey    bool
	escaping bool
	unicode  int // hex digits still expected after \u
	escStart int
	inScalar bool // a number/literal is in progress
}

func (sc *partialScan) closers() string {
	b := make([]byte, 0, len(sc.stack))
	for i := len(sc.stack) - 1; i >= 0; i-- {
		b = append(b, sc.stack[i].closer)
	}
	return string(b)
}

func (sc *partialScan) mark(pos int) {
	sc.safe = append(sc.safe, safePoint{pos: pos, closers: sc.closers()})
}

func (sc *partialScan) top() *frame {
	if len(sc.stack) == 0 {
		return nil
	}
	return &sc.stack[len(sc.stack)-1]
}

func scanPartial(s string) *partialScan {
	sc := &partialScan{complete: -1}

	for i := 0; i < len(s); i++ {
		c := s[i]

		if sc.inString {
			switch {
			case sc.unicode > 0:
				sc.unicode--
			case sc.escaping:
				sc.escaping = false
				if c == 'u' {
					sc.unicode = 4
				}
			case c == '\\':
				sc.escaping = true
				sc.escStart = i
			case c == '"':
				sc.inString = false
				if !sc.isKey {
					sc.mark(i + 1)
				}
			}
			continue
		}

		if sc.inScalar && !isScalarByte(c) {
			sc.inScalar = false
			sc.mark(i)
		}

		switch c {
		case '{', '[':
			closer := byte('}')
			if c == '[' {
				closer = ']'
			}
			sc.stack = append(sc.stack, frame{closer: closer, wantKey: c == '{'})
			sc.mark(i + 1)
		case '}', ']':
			if f := sc.top(); f == nil || f.closer != c {
				sc.invalid = true
				return sc
			}
			sc.stack = sc.stack[:len(sc.stack)-1]
			if len(sc.stack) == 0 {
				sc.complete = i + 1
				return sc
			}
			sc.mark(i + 1)
		case '"':
			sc.inString = true
			f := sc.top()
			sc.isKey = f != nil && f.closer == '}' && f.wantKey
		case ':':
			if f := sc.top(); f != nil {
				f.wantKey = false
			}
		case ',':
			if f := sc.top(); f != nil && f.closer == '}' {
				f.wantKey = true
			}
		case ' ', '\t', '\r', '\n':
		default:
			sc.inScalar = true
		}
	}
	return sc
}

func isScalarByte(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '-', c == '+', c == '.':
		return true
	}
	return false
}

// closeAtEnd closes an open string (dropping an unfinished escape) and every
// open container.
func (sc *partialScan) closeAtEnd(s string) string {
	if !sc.inString {
		return s + sc.closers()
	}
	if sc.escaping || sc.unicode > 0 {
		s = s[:sc.escStart]
	}
	return s + `"` + sc.closers()
}
