package formatter

import (
	"bytes"
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/gogs/chardet"
	htmlcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
	"mvdan.cc/xurls/v2"
)

// DecodeText returns the content of a text part as UTF-8. The forced
// charset wins over the declared one; text declaring no charset, or
// declaring us-ascii while carrying 8bit data, is detected.
func (f *Formatter) DecodeText(part *mimetree.Part) (string, error) {
	data, err := part.TransferDecoded()
	if err != nil {
		return "", err
	}

	label := f.opts.Charset
	if label == "" {
		label = part.Param("charset")
	}
	if label == "" || (strings.EqualFold(label, "us-ascii") && !isASCII(data)) {
		detected, err := DetectCharset(data)
		if err != nil {
			detected = f.opts.DefaultCharset
		}
		label = detected
	}

	return toUTF8(data, label), nil
}

// DetectCharset guesses the charset of data. Valid UTF-8 is reported as
// such without running the detector.
func DetectCharset(data []byte) (string, error) {
	if utf8.Valid(data) {
		return "UTF-8", nil
	}

	// The detector is unreliable on short input, so repeat it.
	sample := data
	if len(data) > 0 && len(data) < 1024 {
		sample = bytes.Repeat(data, 1024/len(data)+1)
	}

	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil {
		return "", err
	}
	return result.Charset, nil
}

func toUTF8(data []byte, label string) string {
	if strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return strings.ToValidUTF8(string(data), "�")
	}

	if r, err := charset.Reader(label, bytes.NewReader(data)); err == nil {
		if out, err := io.ReadAll(r); err == nil {
			return strings.ToValidUTF8(string(out), "�")
		}
	}

	if enc, _ := htmlcharset.Lookup(label); enc != nil {
		out, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err == nil {
			return string(out)
		}
	}

	return strings.ToValidUTF8(string(data), "�")
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

var urlPattern = xurls.Strict()

// textToHTML escapes plain text, turns URLs into links and, when enabled,
// marks quoted lines.
func (f *Formatter) textToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sb strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
		}

		quoted := f.opts.MarkCitations && strings.HasPrefix(line, ">")
		if quoted {
			sb.WriteString("<span class=\"citation\">")
		}
		sb.WriteString(linkify(line))
		if quoted {
			sb.WriteString("</span>")
		}
	}
	return sb.String()
}

func linkify(line string) string {
	var sb strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(line, -1) {
		sb.WriteString(html.EscapeString(line[last:loc[0]]))
		u := html.EscapeString(line[loc[0]:loc[1]])
		sb.WriteString(`<a href="` + u + `">` + u + `</a>`)
		last = loc[1]
	}
	sb.WriteString(html.EscapeString(line[last:]))
	return sb.String()
}

var enrichedTags = map[string]string{
	"bold":       "b",
	"italic":     "i",
	"underline":  "u",
	"fixed":      "tt",
	"bigger":     "big",
	"smaller":    "small",
	"center":     "center",
	"excerpt":    "blockquote",
	"indent":     "blockquote",
	"nofill":     "pre",
	"flushleft":  "div",
	"flushright": "div",
}

var enrichedCommand = regexp.MustCompile(`^<(/?)([a-zA-Z0-9\-]{1,60})>`)

// enrichedToHTML converts text/enriched (RFC 1896) or, with richtext set,
// text/richtext (RFC 1341) to HTML. Unknown commands are dropped.
func enrichedToHTML(text string, richtext bool) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sb strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '<' && strings.HasPrefix(text[i:], "<<"):
			sb.WriteString("&lt;")
			i += 2

		case c == '<':
			m := enrichedCommand.FindStringSubmatch(text[i:])
			if m == nil {
				sb.WriteString("&lt;")
				i++
				continue
			}
			i += len(m[0])

			closing, name := m[1] == "/", strings.ToLower(m[2])
			switch {
			case name == "param" && !closing:
				if end := strings.Index(strings.ToLower(text[i:]), "</param>"); end >= 0 {
					i += end + len("</param>")
				}
			case richtext && name == "nl":
				sb.WriteString("<br>\n")
			case richtext && name == "lt":
				sb.WriteString("&lt;")
			default:
				if tag, ok := enrichedTags[name]; ok {
					if closing {
						sb.WriteString("</" + tag + ">")
					} else {
						sb.WriteString("<" + tag + ">")
					}
				}
			}

		case c == '\n' && !richtext:
			// n newlines stand for n-1 line breaks; a single one is a space.
			n := 0
			for i < len(text) && text[i] == '\n' {
				n++
				i++
			}
			if n == 1 {
				sb.WriteByte(' ')
			} else {
				sb.WriteString(strings.Repeat("<br>\n", n-1))
			}

		case c == '\n':
			// Line breaks in richtext are only made by <nl>.
			sb.WriteByte(' ')
			i++

		default:
			j := i + 1
			for j < len(text) && text[j] != '<' && text[j] != '\n' {
				j++
			}
			sb.WriteString(html.EscapeString(text[i:j]))
			i = j
		}
	}
	return sb.String()
}
