package providers

import "strings"

// Think-tag chunk kinds.
const (
	ChunkText  = "text"
	ChunkThink = "think"
)

// ThinkChunk is one typed span emitted by the ThinkTagParser.
type ThinkChunk struct {
	Kind string
	Text string
}

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// Parser states.
const (
	thinkStateNormal = iota
	thinkStateMaybeOpen
	thinkStateInside
	thinkStateMaybeClose
)

// ThinkTagParser splits arbitrarily chunked text into TEXT and THINK spans
// by recognizing literal <think>…</think> sections. It is a pure state
// machine driven by Feed/Finalize; it owns no I/O.
//
// Concatenating the Text of every emitted chunk reproduces the input with
// the two tag tokens removed. A partial tag straddling a chunk boundary is
// buffered until it resolves; Finalize flushes anything still buffered as
// plain text. Tags match case-sensitively and do not nest: a second <think>
// while inside a section is literal text.
type ThinkTagParser struct {
	state int
	tag   []byte // partial tag match buffer
}

// NewThinkTagParser returns a parser in the NORMAL state.
func NewThinkTagParser() *ThinkTagParser {
	return &ThinkTagParser{state: thinkStateNormal}
}

// InsideThink reports whether the parser is currently inside a think
// section (including a tentative close-tag match).
func (p *ThinkTagParser) InsideThink() bool {
	return p.state == thinkStateInside || p.state == thinkStateMaybeClose
}

// Feed consumes the next chunk of input and returns the spans it resolves.
// Adjacent output of the same kind is coalesced; empty spans are dropped.
func (p *ThinkTagParser) Feed(chunk string) []ThinkChunk {
	var out []ThinkChunk
	var pending strings.Builder
	pendingKind := p.currentKind()

	flush := func() {
		if pending.Len() > 0 {
			out = append(out, ThinkChunk{Kind: pendingKind, Text: pending.String()})
			pending.Reset()
		}
	}
	emit := func(kind string, s string) {
		if s == "" {
			return
		}
		if kind != pendingKind {
			flush()
			pendingKind = kind
		}
		pending.WriteString(s)
	}

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		switch p.state {
		case thinkStateNormal:
			if c == '<' {
				p.state = thinkStateMaybeOpen
				p.tag = append(p.tag[:0], c)
			} else {
				emit(ChunkText, string(c))
			}

		case thinkStateMaybeOpen:
			p.tag = append(p.tag, c)
			matched := string(p.tag)
			switch {
			case matched == thinkOpenTag:
				p.state = thinkStateInside
				p.tag = p.tag[:0]
			case strings.HasPrefix(thinkOpenTag, matched):
				// Still a viable prefix; keep buffering.
			default:
				// Mismatch: the buffer minus the current byte is literal
				// text. Reprocess the current byte from NORMAL.
				emit(ChunkText, string(p.tag[:len(p.tag)-1]))
				p.state = thinkStateNormal
				p.tag = p.tag[:0]
				i--
			}

		case thinkStateInside:
			if c == '<' {
				p.state = thinkStateMaybeClose
				p.tag = append(p.tag[:0], c)
			} else {
				emit(ChunkThink, string(c))
			}

		case thinkStateMaybeClose:
			p.tag = append(p.tag, c)
			matched := string(p.tag)
			switch {
			case matched == thinkCloseTag:
				p.state = thinkStateNormal
				p.tag = p.tag[:0]
			case strings.HasPrefix(thinkCloseTag, matched):
				// Still a viable prefix; keep buffering.
			default:
				emit(ChunkThink, string(p.tag[:len(p.tag)-1]))
				p.state = thinkStateInside
				p.tag = p.tag[:0]
				i--
			}
		}
	}

	flush()
	return out
}

// Finalize flushes any partially matched tag. Buffered characters never
// formed a tag, so they surface as plain text regardless of state.
func (p *ThinkTagParser) Finalize() []ThinkChunk {
	if len(p.tag) == 0 {
		return nil
	}
	out := []ThinkChunk{{Kind: ChunkText, Text: string(p.tag)}}
	p.tag = p.tag[:0]
	p.state = thinkStateNormal
	return out
}

func (p *ThinkTagParser) currentKind() string {
	if p.state == thinkStateInside || p.state == thinkStateMaybeClose {
		return ChunkThink
	}
	return ChunkText
}

// SplitThinkTags runs the parser once over a complete string and returns
// the extracted thinking text and the remaining plain text.
func SplitThinkTags(s string) (thinking, text string) {
	p := NewThinkTagParser()
	var thinkB, textB strings.Builder
	chunks := p.Feed(s)
	chunks = append(chunks, p.Finalize()...)
	for _, c := range chunks {
		if c.Kind == ChunkThink {
			thinkB.WriteString(c.Text)
		} else {
			textB.WriteString(c.Text)
		}
	}
	return thinkB.String(), textB.String()
}
