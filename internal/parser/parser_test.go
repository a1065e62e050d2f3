package parser

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felo/mailparts/internal/attachment"
	"github.com/felo/mailparts/internal/mimetree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MixedMessage(t *testing.T) {
	p := New(testRegistry(), Options{})
	msg := readMessage(t, mixedMessage)

	pl, err := p.Parse(context.Background(), msg, ParseOptions{UID: "42"})
	require.NoError(t, err)

	assert.Equal(t, []PartID{
		".message",
		".message.headers",
		".message.mixed.0.text",
		".message.mixed.1.text",
		".message.mixed.2.attachment",
	}, pl.IDs())

	assert.Equal(t, "42", pl.MessageUID())
	assert.Same(t, msg, pl.Message())
	assert.NotEmpty(t, pl.Token())
	assert.True(t, pl.Frozen())

	att, ok := pl.Find(".message.mixed.2.attachment")
	require.True(t, ok)
	assert.True(t, att.IsAttachment)
	assert.Equal(t, "application/pdf", att.MimeType)
	require.NotNil(t, att.Attachment)
	assert.Equal(t, "doc.pdf", att.Attachment.Filename)
	assert.Equal(t, int64(75), att.Attachment.EstimatedSize)
	assert.False(t, att.Attachment.CanShow)
	assert.False(t, att.Attachment.Shown)
	assert.Empty(t, att.Attachment.PartIDWithAttachment)

	data, err := att.Attachment.Handle.Data(context.Background())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-1.4")))

	assert.Len(t, pl.Attachments(), 1)
}

func TestParse_RootFirst(t *testing.T) {
	p := New(testRegistry(), Options{})

	for _, raw := range []string{
		mixedMessage,
		"Subject: plain\n\nbody\n",
		"Content-Type: application/x-weird\n\n\x00\x01\n",
	} {
		pl, err := p.Parse(context.Background(), readMessage(t, raw), ParseOptions{})
		require.NoError(t, err)
		require.NotZero(t, pl.Len())
		assert.Equal(t, RootID, pl.Parts()[0].ID)
	}
}

func TestParse_NilMessage(t *testing.T) {
	p := New(testRegistry(), Options{})
	_, err := p.Parse(context.Background(), nil, ParseOptions{})
	assert.ErrorIs(t, err, ErrNilMessage)
}

func TestParse_NoRootHandlerPanics(t *testing.T) {
	p := New(NewRegistry(), Options{})
	assert.Panics(t, func() {
		_, _ = p.Parse(context.Background(), readMessage(t, "Subject: x\n\nbody\n"), ParseOptions{})
	})
}

func TestParse_RootFallsBackToMessageWildcard(t *testing.T) {
	reg := NewRegistry()
	reg.Register("message/*", ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		out.Push(NewPart(part, id.Child("envelope"), ""))
		return true
	}))

	pl, err := New(reg, Options{}).Parse(context.Background(), readMessage(t, "Subject: x\n\nbody\n"), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []PartID{".message", ".message.envelope"}, pl.IDs())
}

func TestParse_RootHandlersTriedInOrder(t *testing.T) {
	reg := NewRegistry()
	var calls []string
	reg.Register(MimeMessage, ExtensionFunc(func(*Context, *mimetree.Part, PartID, *Queue) bool {
		calls = append(calls, "first")
		return false
	}))
	reg.Register(MimeMessage, ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		calls = append(calls, "second")
		return true
	}))
	reg.Register(MimeMessage, ExtensionFunc(func(*Context, *mimetree.Part, PartID, *Queue) bool {
		calls = append(calls, "third")
		return true
	}))

	_, err := New(reg, Options{}).Parse(context.Background(), readMessage(t, "Subject: x\n\nbody\n"), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestParse_AsSource(t *testing.T) {
	reg := testRegistry()
	reg.Register(MimeSource, ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		out.Push(NewPart(part, id.Child("source"), MimeSource))
		return true
	}))

	pl, err := New(reg, Options{}).Parse(context.Background(), readMessage(t, mixedMessage), ParseOptions{AsSource: true})
	require.NoError(t, err)
	assert.Equal(t, []PartID{".message", ".message.source"}, pl.IDs())
}

var segment = regexp.MustCompile(`^\.[a-z][a-z0-9_\-]*(\.[0-9]+)?`)

// wellFormed checks that id is the root followed by name or name.index
// segments.
func wellFormed(id PartID) bool {
	if id.IsError() {
		return regexp.MustCompile(`^\.error\.[0-9]+$`).MatchString(string(id))
	}
	rest := strings.TrimPrefix(string(id), string(RootID))
	if len(rest) == len(id) {
		return false
	}
	for rest != "" {
		loc := segment.FindStringIndex(rest)
		if loc == nil {
			return false
		}
		rest = rest[loc[1]:]
	}
	return true
}

func TestParse_IDsUniqueAndStructured(t *testing.T) {
	p := New(testRegistry(), Options{})
	nested := `Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain

a
--inner
Content-Type: text/html

<p>a</p>
--inner--
--outer
Content-Type: application/zip

PK
--outer--
`
	for _, raw := range []string{mixedMessage, nested} {
		pl, err := p.Parse(context.Background(), readMessage(t, raw), ParseOptions{})
		require.NoError(t, err)

		seen := map[PartID]bool{}
		for _, id := range pl.IDs() {
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
			assert.True(t, wellFormed(id), "malformed id %s", id)
		}
	}
}

func TestPartID(t *testing.T) {
	id := RootID.Indexed("mixed", 2).Child("rfc822")
	assert.Equal(t, PartID(".message.mixed.2.rfc822"), id)
	assert.True(t, id.IsEmbeddedStart())
	assert.False(t, id.IsEmbeddedEnd())
	assert.True(t, id.Child("end").IsEmbeddedEnd())
	assert.False(t, id.Child("end").IsEmbeddedStart())
	assert.True(t, id.HasPrefix(RootID))
	assert.False(t, PartID(".messages").HasPrefix(RootID))
	assert.True(t, PartID(".error.3").IsError())
	assert.True(t, wellFormed(id))
	assert.False(t, wellFormed(".other.thing"))
}

func TestWrapAsAttachment_NoHandlersAtAll(t *testing.T) {
	reg := NewRegistry()
	reg.Register(MimeMessage, ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		return pc.ParsePart(part, id, out)
	}))

	msg := readMessage(t, "Content-Type: application/x-unheard-of\nContent-Transfer-Encoding: base64\n\naGVsbG8gd29ybGQ=\n")
	pl, err := New(reg, Options{}).Parse(context.Background(), msg, ParseOptions{})
	require.NoError(t, err)

	require.Equal(t, []PartID{".message", ".message.attachment"}, pl.IDs())
	att := pl.Parts()[1]
	assert.True(t, att.IsAttachment)
	assert.False(t, att.Attachment.CanShow)
	assert.Equal(t, "application/x-unheard-of", att.Attachment.GuessedMimeType)

	data, err := att.Attachment.Handle.Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestWrapAsAttachment_HidesCarrier(t *testing.T) {
	p := New(testRegistry(), Options{})
	msg := readMessage(t, "Content-Type: text/plain\nContent-Disposition: attachment; filename=\"notes.txt\"\n\nsome notes\n")

	pc := &Context{ctx: context.Background(), parser: p, list: newPartList(msg, nil, "", "t"), logger: p.logger}

	var work Queue
	require.True(t, pc.ParsePart(msg, RootID, &work))
	a := pc.WrapAsAttachment(msg, RootID, WrapFlagIsPossible, &work)

	require.Equal(t, []PartID{".message.attachment", ".message.text"}, ids(work.Parts()))
	assert.Same(t, a, work.Front())
	assert.True(t, work.Parts()[1].IsHidden)
	assert.Equal(t, PartID(".message.text"), a.Attachment.PartIDWithAttachment)
	assert.Equal(t, "text/plain", a.Attachment.GuessedMimeType)
	assert.True(t, a.Attachment.CanShow)
	assert.False(t, a.Attachment.Shown, "attachment disposition keeps it collapsed")
	assert.True(t, a.Attachment.IsPossible)
	assert.Equal(t, "notes.txt", a.Attachment.Filename)

	// A second wrap does not hide the first attachment.
	b := pc.WrapAsAttachment(msg, RootID.Child("again"), WrapFlagNone, &work)
	assert.Empty(t, b.Attachment.PartIDWithAttachment)
	assert.False(t, a.IsHidden)
}

func TestWrapAsAttachment_InlineShown(t *testing.T) {
	p := New(testRegistry(), Options{})
	msg := readMessage(t, "Content-Type: text/plain\n\nhello\n")
	pc := &Context{ctx: context.Background(), parser: p, list: newPartList(msg, nil, "", "t"), logger: p.logger}

	var work Queue
	a := pc.WrapAsAttachment(msg, RootID, WrapFlagNone, &work)
	assert.True(t, a.Attachment.Shown)
	assert.True(t, a.Attachment.Expandable)
	assert.Equal(t, int64(len("hello\r\n")), a.Attachment.EstimatedSize)
}

func TestWrapAsNonExpandableAttachment(t *testing.T) {
	p := New(testRegistry(), Options{})
	msg := readMessage(t, "Content-Type: text/plain\n\nhello\n")
	pc := &Context{ctx: context.Background(), parser: p, list: newPartList(msg, nil, "", "t"), logger: p.logger}

	var out Queue
	out.Push(NewPart(msg, RootID.Child("text"), ""))
	a := pc.WrapAsNonExpandableAttachment(msg, RootID, &out)

	require.Equal(t, []PartID{".message.text", ".message.attachment"}, ids(out.Parts()))
	assert.False(t, out.Parts()[0].IsHidden)
	assert.False(t, a.Attachment.Shown)
	assert.False(t, a.Attachment.CanShow)
	assert.False(t, a.Attachment.Expandable)
}

func TestWrapAsAttachment_ScheduledOnLoader(t *testing.T) {
	loader := attachment.NewLoader(1, nil)
	defer loader.Close()

	p := New(testRegistry(), Options{Loader: loader})
	pl, err := p.Parse(context.Background(), readMessage(t, mixedMessage), ParseOptions{})
	require.NoError(t, err)

	att := pl.Attachments()[0]
	assert.True(t, att.Attachment.Handle.Scheduled())
	require.NoError(t, att.Attachment.Handle.Wait(context.Background()))
}

func TestErrorParts(t *testing.T) {
	reg := testRegistry()
	reg.Register("application/x-broken", ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		pc.Error(out, "could not decode %s", id)
		return true
	}))

	raw := `Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: text/plain

before
--b
Content-Type: application/x-broken

???
--b
Content-Type: text/plain

after
--b
Content-Type: application/x-broken

???
--b--
`
	p := New(reg, Options{})
	pl, err := p.Parse(context.Background(), readMessage(t, raw), ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, []PartID{
		".message",
		".message.headers",
		".message.mixed.0.text",
		".error.1",
		".message.mixed.2.text",
		".error.2",
	}, pl.IDs())

	e, ok := pl.Find(".error.1")
	require.True(t, ok)
	assert.True(t, e.IsError)
	assert.False(t, e.IsPrintable)
	assert.Equal(t, MimeError, e.MimeType)
	assert.Equal(t, "could not decode .message.mixed.1", e.Text)

	// The counter is per parser, not per parse.
	pl, err = p.Parse(context.Background(), readMessage(t, raw), ParseOptions{})
	require.NoError(t, err)
	_, ok = pl.Find(".error.3")
	assert.True(t, ok)
}

func TestParse_CancellationReturnsPrefix(t *testing.T) {
	raw := `Content-Type: multipart/mixed; boundary="b"

--b
Content-Type: text/plain

one
--b
Content-Type: application/x-stop

two
--b
Content-Type: text/plain

three
--b
Content-Type: application/pdf

four
--b--
`
	var cancel context.CancelFunc = func() {}
	reg := testRegistry()
	reg.Register("application/x-stop", ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		out.Push(NewPart(part, id.Child("stop"), ""))
		cancel()
		return true
	}))
	p := New(reg, Options{})

	full, err := p.Parse(context.Background(), readMessage(t, raw), ParseOptions{})
	require.NoError(t, err)

	ctx, c := context.WithCancel(context.Background())
	cancel = c
	partial, err := p.Parse(ctx, readMessage(t, raw), ParseOptions{})
	require.NoError(t, err)

	fullIDs, partialIDs := full.IDs(), partial.IDs()
	require.Less(t, len(partialIDs), len(fullIDs))
	assert.Equal(t, fullIDs[:len(partialIDs)], partialIDs)
	assert.Equal(t, PartID(".message.mixed.1.stop"), partialIDs[len(partialIDs)-1])
}

func TestParse_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pl, err := New(testRegistry(), Options{}).Parse(ctx, readMessage(t, mixedMessage), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, []PartID{RootID}, pl.IDs())
}

func TestParse_ConcurrentParsesIsolated(t *testing.T) {
	arrived := make(chan string, 2)
	release := make(chan struct{})

	reg := testRegistry()
	reg.Register("application/x-sync", ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		arrived <- pc.PartList().Token()
		<-release

		// The registry lookup by token resolves to this parse's own list.
		own, ok := pc.Parser().PartListFor(pc.PartList().Token())
		if !ok || own != pc.PartList() {
			pc.Error(out, "token resolved to the wrong part list")
		}
		content, _ := part.Content()
		out.Push(NewPart(part, id.Child(strings.TrimSpace(string(content))), ""))
		return true
	}))
	p := New(reg, Options{})

	message := func(name string) string {
		return fmt.Sprintf("Subject: %s\nContent-Type: application/x-sync\n\n%s\n", name, name)
	}

	var wg sync.WaitGroup
	results := make(map[string]*PartList)
	var mu sync.Mutex
	for _, name := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			pl, err := p.Parse(context.Background(), readMessage(t, message(name)), ParseOptions{Token: name})
			assert.NoError(t, err)
			mu.Lock()
			results[name] = pl
			mu.Unlock()
		}(name)
	}

	// Both parses are in flight at the same time.
	tokens := map[string]bool{<-arrived: true, <-arrived: true}
	assert.Equal(t, map[string]bool{"alpha": true, "beta": true}, tokens)

	alpha, ok := p.PartListFor("alpha")
	require.True(t, ok)
	beta, ok := p.PartListFor("beta")
	require.True(t, ok)
	assert.NotSame(t, alpha, beta)

	close(release)
	wg.Wait()

	assert.Equal(t, []PartID{".message", ".message.headers", ".message.alpha"}, results["alpha"].IDs())
	assert.Equal(t, []PartID{".message", ".message.headers", ".message.beta"}, results["beta"].IDs())
	assert.Same(t, alpha, results["alpha"])
	assert.Same(t, beta, results["beta"])

	_, ok = p.PartListFor("alpha")
	assert.False(t, ok, "finished parses are unregistered")
}

func TestParse_TokenInUse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	reg := testRegistry()
	reg.Register("application/x-sync", ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		close(started)
		<-release
		return true
	}))
	p := New(reg, Options{})

	done := p.ParseAsync(context.Background(), readMessage(t, "Content-Type: application/x-sync\n\nx\n"), ParseOptions{Token: "same"})
	<-started

	_, err := p.Parse(context.Background(), readMessage(t, "Subject: x\n\nbody\n"), ParseOptions{Token: "same"})
	assert.ErrorIs(t, err, ErrTokenInUse)

	close(release)
	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, "same", res.PartList.Token())
}

func TestParseAsync(t *testing.T) {
	p := New(testRegistry(), Options{})

	select {
	case res, ok := <-p.ParseAsync(context.Background(), readMessage(t, mixedMessage), ParseOptions{}):
		require.True(t, ok)
		require.NoError(t, res.Err)
		assert.Equal(t, 5, res.PartList.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("async parse did not complete")
	}

	res := <-p.ParseAsync(context.Background(), nil, ParseOptions{})
	assert.ErrorIs(t, res.Err, ErrNilMessage)
	assert.Nil(t, res.PartList)
}

func TestParse_DebugDump(t *testing.T) {
	var buf bytes.Buffer
	p := New(testRegistry(), Options{Debug: true, DebugOutput: &buf})

	_, err := p.Parse(context.Background(), readMessage(t, mixedMessage), ParseOptions{})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Parser finished with PartList:")
	assert.Contains(t, out, "id: .message | cid:  | mime_type: multipart/mixed | is_hidden: 0 | is_attachment: 0 | is_printable: 1")
	assert.Contains(t, out, "id: .message.mixed.2.attachment | cid:  | mime_type: application/pdf | is_hidden: 0 | is_attachment: 1 | is_printable: 1 | size: 75 B")
}

type recordingObserver struct {
	mu       sync.Mutex
	parses   int
	wrapped  []string
	errors   int
	canceled int
}

func (o *recordingObserver) ParseFinished(_ time.Duration, _ int, cancelled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parses++
	if cancelled {
		o.canceled++
	}
}

func (o *recordingObserver) AttachmentWrapped(mimeType string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.wrapped = append(o.wrapped, mimeType)
}

func (o *recordingObserver) ErrorPart() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors++
}

func TestParse_Observer(t *testing.T) {
	obs := &recordingObserver{}
	p := New(testRegistry(), Options{Observer: obs})

	_, err := p.Parse(context.Background(), readMessage(t, mixedMessage), ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, obs.parses)
	assert.Equal(t, []string{"application/pdf"}, obs.wrapped)
	assert.Zero(t, obs.errors)
}

type fakeFolder struct {
	mu       sync.Mutex
	subjects map[string]string
}

func (f *fakeFolder) Name() string { return "inbox" }

func (f *fakeFolder) UpdateSubject(_ context.Context, uid, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects[uid] = subject
	return nil
}

func TestContext_SetProtectedSubject(t *testing.T) {
	reg := testRegistry()
	reg.Register("application/x-protected", ExtensionFunc(func(pc *Context, part *mimetree.Part, id PartID, out *Queue) bool {
		pc.SetProtectedSubject("Real subject")
		return true
	}))

	folder := &fakeFolder{subjects: map[string]string{}}
	pl, err := New(reg, Options{}).Parse(context.Background(),
		readMessage(t, "Subject: ...\nContent-Type: application/x-protected\n\nx\n"),
		ParseOptions{Folder: folder, UID: "7"})
	require.NoError(t, err)

	assert.Equal(t, "Real subject", pl.ProtectedSubject())
	assert.Equal(t, "Real subject", folder.subjects["7"])
	assert.Equal(t, "inbox", pl.Folder().Name())
}
