package css

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser splits CSS text into declarations and verbatim text between them.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

type token struct {
	tt     css.TokenType
	text   string
	offset int
	line   int
}

// Parse parses CSS text into a Stylesheet. source names the file data came
// from, it is reported by declarations and warnings.
func (p *Parser) Parse(data []byte, source string) (*Stylesheet, error) {
	p.log.Debug("Parsing CSS", zap.String("source", source), zap.Int("bytes", len(data)))

	tokens, err := tokenize(data)
	if err != nil {
		return nil, fmt.Errorf("unable to tokenize '%s': %w", source, err)
	}

	b := &builder{sheet: &Stylesheet{Source: source}, data: data}

	var (
		depth int // open blocks
		nest  int // open parentheses and brackets
		stmt  int // index of the first token of current statement
	)
	for i, t := range tokens {
		switch t.tt {
		case css.LeftParenthesisToken, css.FunctionToken, css.LeftBracketToken:
			nest++
		case css.RightParenthesisToken, css.RightBracketToken:
			if nest > 0 {
				nest--
			}
		case css.LeftBraceToken:
			if nest > 0 {
				continue
			}
			depth++
			stmt = i + 1
		case css.SemicolonToken:
			if nest > 0 {
				continue
			}
			if depth > 0 {
				b.statement(tokens[stmt:i], t.offset)
			}
			stmt = i + 1
		case css.RightBraceToken:
			if depth > 0 {
				b.statement(tokens[stmt:i], t.offset)
				depth--
			}
			nest = 0
			stmt = i + 1
		}
	}
	// unterminated declaration at the end of input is still a declaration
	if depth > 0 && stmt < len(tokens) {
		b.statement(tokens[stmt:], len(data))
	}
	b.flush(len(data))

	p.log.Debug("Parsed CSS",
		zap.String("source", source),
		zap.Int("declarations", len(b.sheet.decls)),
		zap.Int("segments", len(b.sheet.segments)))
	return b.sheet, nil
}

// tokenize runs lexer over the whole input. Tokens cover input without gaps,
// it is verified so serialization could never lose text.
func tokenize(data []byte) ([]token, error) {
	l := css.NewLexer(parse.NewInput(bytes.NewReader(data)))

	var (
		tokens []token
		offset int
		line   = 1
	)
	for {
		tt, text := l.Next()
		if tt == css.ErrorToken {
			if err := l.Err(); err != nil && err != io.EOF {
				return nil, err
			}
			break
		}
		tokens = append(tokens, token{tt: tt, text: string(text), offset: offset, line: line})
		offset += len(text)
		line += bytes.Count(text, []byte{'\n'})
	}
	if offset != len(data) {
		return nil, fmt.Errorf("lexer consumed %d of %d bytes", offset, len(data))
	}
	return tokens, nil
}

type builder struct {
	sheet *Stylesheet
	data  []byte
	done  int // input before this offset is already in segments
}

func (b *builder) flush(upto int) {
	if upto > b.done {
		b.sheet.segments = append(b.sheet.segments, segment{raw: string(b.data[b.done:upto])})
		b.done = upto
	}
}

// statement turns tokens of a single statement inside a block into
// declaration when they look like one. end is offset of the terminator.
func (b *builder) statement(tokens []token, end int) {
	name := skipBlank(tokens, 0)
	if name == len(tokens) || (tokens[name].tt != css.IdentToken && tokens[name].tt != css.CustomPropertyNameToken) {
		return
	}
	colon := skipBlank(tokens, name+1)
	if colon == len(tokens) || tokens[colon].tt != css.ColonToken {
		return
	}

	first := skipBlank(tokens, colon+1)
	last := trimBlank(tokens, first, len(tokens))

	important := false
	if last-first >= 2 && tokens[last-1].tt == css.IdentToken && strings.EqualFold(tokens[last-1].text, "important") {
		bang := trimBlank(tokens, first, last-1)
		if bang > first && tokens[bang-1].tt == css.DelimToken && tokens[bang-1].text == "!" {
			important = true
			last = trimBlank(tokens, first, bang-1)
		}
	}

	offset := func(i int) int {
		if i < len(tokens) {
			return tokens[i].offset
		}
		return end
	}
	start, vstart, vend := tokens[name].offset, offset(first), offset(last)

	decl := &Declaration{
		Property:  tokens[name].text,
		Line:      tokens[name].line,
		sheet:     b.sheet,
		head:      string(b.data[start:vstart]),
		value:     string(b.data[vstart:vend]),
		tail:      string(b.data[vend:end]),
		important: important,
	}

	b.flush(start)
	b.sheet.segments = append(b.sheet.segments, segment{decl: decl})
	b.sheet.decls = append(b.sheet.decls, decl)
	b.done = end
}

func isBlank(t token) bool {
	return t.tt == css.WhitespaceToken || t.tt == css.CommentToken
}

// skipBlank returns index of the first non blank token at or after i.
func skipBlank(tokens []token, i int) int {
	for i < len(tokens) && isBlank(tokens[i]) {
		i++
	}
	return i
}

// trimBlank returns end of tokens[from:to] with trailing blanks removed.
func trimBlank(tokens []token, from, to int) int {
	for to > from && isBlank(tokens[to-1]) {
		to--
	}
	return to
}
