package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestIngestor_ResolveAndDecodePlainText(t *testing.T) {
	ing := NewIngestor()
	ref := writeTempFile(t, "notes.txt", "Doc body")

	att, err := ing.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", att.Filename)
	assert.Equal(t, StatePending, att.State)

	text, err := ing.Decode(att)
	require.NoError(t, err)
	assert.Equal(t, "Doc body", text)
	assert.Equal(t, StateDecoded, att.State)
}

func TestIngestor_ResolveMissingFileIsNotFound(t *testing.T) {
	ing := NewIngestor()

	_, err := ing.Resolve(context.Background(), "/does/not/exist.txt")
	require.Error(t, err)

	var ingErr *Error
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, ErrKindNotFound, ingErr.Kind)
	assert.Equal(t, "exist.txt", ingErr.Filename)
}

func TestIngestor_DecodeFailureRecordsReason(t *testing.T) {
	ing := NewIngestor()
	att := &Attachment{
		Filename:    "broken.txt",
		ContentType: "text/plain",
		Data:        []byte{0xff, 0xfe, 0xfd},
		State:       StatePending,
	}

	_, err := ing.Decode(att)
	require.Error(t, err)

	var ingErr *Error
	require.ErrorAs(t, err, &ingErr)
	assert.Equal(t, ErrKindDecodeFailed, ingErr.Kind)
	assert.Equal(t, "broken.txt", ingErr.Filename)
	assert.Equal(t, StateFailed, att.State)
	assert.NotEmpty(t, att.Reason)
}

func TestIngestor_ContentTypeWinsOverSuffix(t *testing.T) {
	ing := NewIngestor()
	att := &Attachment{
		Filename:    "page.weird",
		ContentType: "text/html; charset=utf-8",
		Data:        []byte("<html><body><p>Hello <b>there</b></p><script>x()</script></body></html>"),
	}

	text, err := ing.Decode(att)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello there")
	assert.NotContains(t, text, "x()")
}

func TestIngestor_SuffixDispatchMarkdown(t *testing.T) {
	ing := NewIngestor()
	att := &Attachment{
		Filename: "README.md",
		Data:     []byte("# Title\n\nSome *emphasized* text."),
	}

	text, err := ing.Decode(att)
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Some emphasized text.")
	assert.NotContains(t, text, "#")
	assert.NotContains(t, text, "*")
}

func TestIngestor_FallbackDecoderForUnknownType(t *testing.T) {
	ing := NewIngestor()
	att := &Attachment{
		Filename: "blob.bin",
		Data:     append([]byte("mostly text "), 0xff),
	}

	text, err := ing.Decode(att)
	require.NoError(t, err)
	assert.Equal(t, "mostly text ", text)
}

type failingDecoder struct{}

func (failingDecoder) ContentTypes() []string { return []string{"application/x-broken"} }
func (failingDecoder) Suffixes() []string     { return []string{".broken"} }
func (failingDecoder) Decode([]byte, string) (string, error) {
	return "", errors.New("decoder exploded")
}

func TestIngestor_RegisteredDecoderTakesPriority(t *testing.T) {
	ing := NewIngestor(WithDecoder(failingDecoder{}))
	att := &Attachment{Filename: "f.broken", Data: []byte("x")}

	_, err := ing.Decode(att)
	require.Error(t, err)
	assert.Equal(t, StateFailed, att.State)
}

func TestPrompt_PrependRule(t *testing.T) {
	assert.Equal(t, "Doc body\n\nQ", Prompt("Doc body", "Q"))
	// empty extracted text still prepends the separator
	assert.Equal(t, "\n\nQ", Prompt("", "Q"))
}

func TestFilenameForRef(t *testing.T) {
	assert.Equal(t, "doc.pdf", FilenameForRef("https://example.com/files/doc.pdf?x=1"))
	assert.Equal(t, "notes.txt", FilenameForRef("/tmp/notes.txt"))
	assert.Equal(t, GenericFilename, FilenameForRef(""))
}
