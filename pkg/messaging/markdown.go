package messaging

import "strings"

// DiscordMessageLimit is the maximum length of a single Discord message.
const DiscordMessageLimit = 2000

// TelegramMessageLimit is the maximum length of a single Telegram message.
const TelegramMessageLimit = 4096

// mdv2Special is every character Telegram's MarkdownV2 mode requires
// escaping outside code entities.
const mdv2Special = "_*[]()~`>#+-=|{}.!"

// EscapeMDV2 escapes text for Telegram MarkdownV2.
func EscapeMDV2(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(mdv2Special, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// EscapeMDV2Code escapes text for a MarkdownV2 code entity, where only
// backslash and backtick are special.
func EscapeMDV2Code(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "`", "\\`")
}

// EscapeMDV2LinkURL escapes a URL for a MarkdownV2 inline link, where only
// backslash and the closing parenthesis are special.
func EscapeMDV2LinkURL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, ")", `\)`)
}

// MDV2Bold wraps already-unescaped text as bold MarkdownV2.
func MDV2Bold(s string) string {
	return "*" + EscapeMDV2(s) + "*"
}

// MDV2CodeInline wraps already-unescaped text as inline code MarkdownV2.
func MDV2CodeInline(s string) string {
	return "`" + EscapeMDV2Code(s) + "`"
}

// discordSpecial is the set of Discord formatting characters escaped in
// plain text.
const discordSpecial = "\\*_`~|>"

// EscapeDiscord escapes Discord formatting characters in plain text.
func EscapeDiscord(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(discordSpecial, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// EscapeDiscordCode escapes text for a Discord inline code span.
func EscapeDiscordCode(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "`", "\\`")
}

// DiscordBold wraps already-unescaped text as bold.
func DiscordBold(s string) string {
	return "**" + EscapeDiscord(s) + "**"
}

// DiscordCodeInline wraps already-unescaped text as inline code.
func DiscordCodeInline(s string) string {
	return "`" + EscapeDiscordCode(s) + "`"
}

// RenderMDV2 converts model-produced markdown into Telegram MarkdownV2:
// fenced code blocks and inline code keep their content with code escaping,
// **bold** becomes MarkdownV2 *bold*, everything else is escaped.
func RenderMDV2(text string) string {
	var sb strings.Builder
	for _, seg := range segmentCode(text) {
		switch seg.kind {
		case segFence:
			sb.WriteString("```")
			sb.WriteString(EscapeMDV2Code(seg.lang))
			sb.WriteString("\n")
			sb.WriteString(EscapeMDV2Code(seg.text))
			sb.WriteString("```")
		case segInline:
			sb.WriteString("`")
			sb.WriteString(EscapeMDV2Code(seg.text))
			sb.WriteString("`")
		default:
			sb.WriteString(escapeMDV2Prose(seg.text))
		}
	}
	return sb.String()
}

// escapeMDV2Prose escapes prose while translating **bold** spans.
func escapeMDV2Prose(s string) string {
	var sb strings.Builder
	for {
		start := strings.Index(s, "**")
		if start < 0 {
			sb.WriteString(EscapeMDV2(s))
			return sb.String()
		}
		end := strings.Index(s[start+2:], "**")
		if end < 0 {
			sb.WriteString(EscapeMDV2(s))
			return sb.String()
		}
		sb.WriteString(EscapeMDV2(s[:start]))
		sb.WriteString("*")
		sb.WriteString(EscapeMDV2(s[start+2 : start+2+end]))
		sb.WriteString("*")
		s = s[start+2+end+2:]
	}
}

// RenderDiscord converts model-produced markdown for Discord. Discord
// understands standard markdown natively, so code segments pass through
// untouched and only stray formatting characters in prose would need care;
// the model's own markdown is kept as is.
func RenderDiscord(text string) string {
	return text
}

type segKind int

const (
	segProse segKind = iota
	segInline
	segFence
)

type segment struct {
	kind segKind
	lang string
	text string
}

// segmentCode splits text into prose, inline-code, and fenced-code segments
// so escaping can differ per segment.
func segmentCode(text string) []segment {
	var segs []segment
	for len(text) > 0 {
		fence := strings.Index(text, "```")
		tick := strings.IndexByte(text, '`')

		if fence >= 0 && fence == tick {
			if fence > 0 {
				segs = append(segs, segment{kind: segProse, text: text[:fence]})
			}
			rest := text[fence+3:]
			end := strings.Index(rest, "```")
			if end < 0 {
				// Unterminated fence runs to the end of the text.
				lang, body := splitFenceHeader(rest)
				segs = append(segs, segment{kind: segFence, lang: lang, text: body})
				return segs
			}
			lang, body := splitFenceHeader(rest[:end])
			segs = append(segs, segment{kind: segFence, lang: lang, text: body})
			text = rest[end+3:]
			continue
		}

		if tick >= 0 {
			rest := text[tick+1:]
			end := strings.IndexByte(rest, '`')
			if end < 0 {
				segs = append(segs, segment{kind: segProse, text: text})
				return segs
			}
			if tick > 0 {
				segs = append(segs, segment{kind: segProse, text: text[:tick]})
			}
			segs = append(segs, segment{kind: segInline, text: rest[:end]})
			text = rest[end+1:]
			continue
		}

		segs = append(segs, segment{kind: segProse, text: text})
		return segs
	}
	return segs
}

// splitFenceHeader separates the info string on the fence's first line from
// the code body.
func splitFenceHeader(s string) (lang, body string) {
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return "", s
	}
	header := strings.TrimSpace(s[:nl])
	if strings.ContainsAny(header, " \t`") {
		return "", s
	}
	return header, s[nl+1:]
}

// SplitMessage splits text into chunks of at most limit runes, preferring
// newline boundaries and falling back to a hard split.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
