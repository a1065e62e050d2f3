package formatter

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/felo/mailparts/internal/extensions"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/felo/mailparts/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) *parser.PartList {
	t.Helper()
	msg, err := mimetree.Read(strings.NewReader(strings.ReplaceAll(raw, "\n", "\r\n")))
	require.NoError(t, err)

	pl, err := parser.New(extensions.DefaultRegistry(), parser.Options{}).Parse(context.Background(), msg, parser.ParseOptions{})
	require.NoError(t, err)
	return pl
}

func format(t *testing.T, f *Formatter, pl *parser.PartList, mode Mode) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, f.Format(context.Background(), &buf, pl, mode))
	return buf.String()
}

const newsletter = `From: =?UTF-8?Q?Jos=C3=A9?= <jose@example.com>
To: reader@example.com
Subject: Weekly news
Date: Mon, 1 Jan 2024 10:00:00 +0000
Content-Type: multipart/mixed; boundary="mix"

--mix
Content-Type: multipart/alternative; boundary="alt"

--alt
Content-Type: text/plain; charset=utf-8

PLAIN VERSION
--alt
Content-Type: text/html; charset=utf-8

<h1>News</h1><script>alert(1)</script><a href="https://example.com" onclick="x()">more</a>
--alt--
--mix
Content-Type: application/zip; name="archive.zip"
Content-Disposition: attachment; filename="archive.zip"
Content-Transfer-Encoding: base64

UEsDBBQAAAAIAAAAIQAAAAAAAAAAAAAAAAAAAAAA
--mix--
`

func TestFormat_Normal(t *testing.T) {
	f := New(Options{})
	out := format(t, f, parse(t, newsletter), ModeNormal)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.True(t, strings.HasSuffix(out, "</body></html>"))

	assert.Contains(t, out, "<th>Subject:</th><td>Weekly news</td>")
	assert.Contains(t, out, "<th>From:</th><td>José &lt;jose@example.com&gt;</td>")
	assert.Contains(t, out, "<h1>News</h1>")
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "PLAIN VERSION", "hidden alternative")
	assert.Contains(t, out, "archive.zip")
	assert.Contains(t, out, "<div class=\"attachment\">")
}

func TestFormat_Source(t *testing.T) {
	f := New(Options{})
	out := format(t, f, parse(t, newsletter), ModeSource)

	assert.Equal(t, 1, strings.Count(out, "<pre class=\"source\">"), "the whole message once")
	assert.Contains(t, out, "Subject: Weekly news")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "<table class=\"headers\">")
}

func TestFormat_PrintingSkipsUnprintable(t *testing.T) {
	raw := `Subject: smime
Content-Type: application/pkcs7-mime; smime-type=enveloped-data; name="smime.p7m"
Content-Transfer-Encoding: base64

MIAGCSqGSIb3DQEHA6CAMIACAQA=
`
	f := New(Options{})
	pl := parse(t, raw)

	assert.Contains(t, format(t, f, pl, ModeNormal), "<div class=\"error\">")
	assert.NotContains(t, format(t, f, pl, ModePrinting), "<div class=\"error\">")
}

func TestFormat_EmbeddedMessage(t *testing.T) {
	message := func(disposition string) string {
		return `Subject: outer
Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: text/plain

outer text
--b
Content-Type: message/rfc822
Content-Disposition: ` + disposition + `

Subject: inner subject
Content-Type: text/plain

inner text
--b--
`
	}
	f := New(Options{})

	t.Run("inline is expanded", func(t *testing.T) {
		out := format(t, f, parse(t, message("inline")), ModeNormal)
		assert.Contains(t, out, "<div class=\"rfc822\">")
		assert.Contains(t, out, "inner subject")
		assert.Contains(t, out, "inner text")
		assert.Equal(t, 1, strings.Count(out, "<div class=\"rfc822\">"))
		assert.Less(t, strings.Index(out, "message/rfc822"), strings.Index(out, "inner text"), "attachment before its content")
	})

	t.Run("attachment is collapsed", func(t *testing.T) {
		out := format(t, f, parse(t, message("attachment")), ModeNormal)
		assert.NotContains(t, out, "inner text")
		assert.Contains(t, out, "message/rfc822")
		assert.Contains(t, out, "outer text")
	})
}

func TestFormat_RelatedImages(t *testing.T) {
	raw := `Content-Type: multipart/related; boundary="rel"

--rel
Content-Type: text/html

<p><img src="cid:logo@example.com"></p>
--rel
Content-Type: image/png
Content-ID: <logo@example.com>
Content-Transfer-Encoding: base64

iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg==
--rel--
`
	pl := parse(t, raw)

	t.Run("without part urls", func(t *testing.T) {
		out := format(t, New(Options{}), pl, ModeNormal)
		assert.Contains(t, out, `src="cid:logo@example.com"`)
	})

	t.Run("with part urls", func(t *testing.T) {
		f := New(Options{PartURL: func(pl *parser.PartList, id parser.PartID) string {
			return "/parts/" + id.String()
		}})
		out := format(t, f, pl, ModeNormal)
		assert.Contains(t, out, `src="/parts/.message.related.1.image"`)
		assert.NotContains(t, out, "cid:")
	})
}

func TestFormatPart(t *testing.T) {
	f := New(Options{})
	pl := parse(t, newsletter)

	var buf bytes.Buffer
	require.NoError(t, f.FormatPart(context.Background(), &buf, pl, ".message.mixed.0.alternative.0.plain_text", ModeNormal))
	assert.Contains(t, buf.String(), "PLAIN VERSION", "hidden parts can still be rendered on their own")

	err := f.FormatPart(context.Background(), &buf, pl, ".message.nope", ModeNormal)
	assert.ErrorIs(t, err, parser.ErrPartNotFound)
}

func TestPlainText(t *testing.T) {
	f := New(Options{})
	text := f.PlainText(parse(t, newsletter))

	assert.Contains(t, text, "News")
	assert.Contains(t, text, "more")
	assert.NotContains(t, text, "PLAIN VERSION")
	assert.NotContains(t, text, "<h1>")
	assert.NotContains(t, text, "alert")
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		opts     Options
		expected string
	}{
		{
			name:     "declared charset",
			raw:      "Content-Type: text/plain; charset=windows-1252\nContent-Transfer-Encoding: 8bit\n\nCaf\xe9",
			expected: "Café",
		},
		{
			name:     "quoted printable latin-1",
			raw:      "Content-Type: text/plain; charset=iso-8859-1\nContent-Transfer-Encoding: quoted-printable\n\n=E9t=E9",
			expected: "été",
		},
		{
			name:     "utf-8 without charset",
			raw:      "Content-Type: text/plain\n\nnaïve",
			expected: "naïve",
		},
		{
			name:     "forced charset",
			raw:      "Content-Type: text/plain; charset=utf-8\nContent-Transfer-Encoding: 8bit\n\nCaf\xe9",
			opts:     Options{Charset: "iso-8859-1"},
			expected: "Café",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			part, err := mimetree.Read(strings.NewReader(tt.raw))
			require.NoError(t, err)

			text, err := New(tt.opts).DecodeText(part)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, text)
		})
	}
}

func TestDecodeText_Detected(t *testing.T) {
	part, err := mimetree.Read(strings.NewReader("Content-Type: text/plain; charset=us-ascii\n\nEl ni\xf1o comi\xf3 caf\xe9 en la estaci\xf3n de tren."))
	require.NoError(t, err)

	text, err := New(Options{}).DecodeText(part)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, "El ni")
	assert.NotContains(t, text, "\xf1")
}

func TestDetectCharset(t *testing.T) {
	label, err := DetectCharset([]byte("plain ascii and ütf-8"))
	require.NoError(t, err)
	assert.Equal(t, "UTF-8", label)
}

func TestTextToHTML(t *testing.T) {
	f := New(Options{MarkCitations: true})

	out := f.textToHTML("see https://example.com/a?b=1&c=2.\r\n> quoted <b>\r\nbye")
	assert.Equal(t,
		"see <a href=\"https://example.com/a?b=1&amp;c=2\">https://example.com/a?b=1&amp;c=2</a>.\n"+
			"<span class=\"citation\">&gt; quoted &lt;b&gt;</span>\n"+
			"bye",
		out)
}

func TestEnrichedToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		richtext bool
		expected string
	}{
		{"bold", "<bold>hi</bold>", false, "<b>hi</b>"},
		{"escaped less than", "a <<b", false, "a &lt;b"},
		{"param dropped", "<color><param>red</param>x</color>", false, "x"},
		{"single newline is space", "a\nb", false, "a b"},
		{"double newline breaks", "a\n\nb", false, "a<br>\nb"},
		{"unknown command dropped", "<blink>x</blink>", false, "x"},
		{"html escaped", "a & \"b\"", false, "a &amp; &#34;b&#34;"},
		{"richtext nl", "a<nl>b\nc", true, "a<br>\nb c"},
		{"richtext lt", "<lt>x", true, "&lt;x"},
		{"utf-8 kept", "<italic>café</italic>", false, "<i>café</i>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, enrichedToHTML(tt.input, tt.richtext))
		})
	}
}

func TestMarkdown(t *testing.T) {
	raw := "Content-Type: text/markdown\n\n# Title\n\n~~old~~ and <script>x</script>\n\n| a | b |\n|---|---|\n| 1 | 2 |\n"
	out := format(t, New(Options{}), parse(t, raw), ModeNormal)

	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<del>old</del>")
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "<script>")
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeNormal, "print": ModePrinting, "SOURCE": ModeSource} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("fancy")
	assert.Error(t, err)
}
