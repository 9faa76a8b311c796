package ingest

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// DecodeState tracks the life cycle of an attachment. An attachment is
// created at turn submission, resolved asynchronously, and never mutated
// after resolution.
type DecodeState string

const (
	StatePending DecodeState = "pending"
	StateDecoded DecodeState = "decoded"
	StateFailed  DecodeState = "failed"
)

// Attachment is a resolved attachment reference.
type Attachment struct {
	Ref         string
	Filename    string
	ContentType string
	Data        []byte

	State  DecodeState
	Text   string
	Reason string
}

// Decoder extracts text from attachment bytes. Decoders self-describe the
// content types and filename suffixes they handle.
type Decoder interface {
	ContentTypes() []string
	Suffixes() []string
	Decode(data []byte, filename string) (string, error)
}

// Ingestor resolves attachment references and dispatches them to a decoder.
//
// Dispatch policy: exact content-type match first, then filename-suffix
// match, then the generic byte-to-text fallback.
type Ingestor struct {
	resolver Resolver
	decoders []Decoder
	fallback Decoder
}

type IngestorOption func(*Ingestor)

func WithResolver(r Resolver) IngestorOption {
	return func(i *Ingestor) {
		i.resolver = r
	}
}

// WithDecoder registers an additional decoder. Later registrations win over
// the built-in ones for the types they claim.
func WithDecoder(d Decoder) IngestorOption {
	return func(i *Ingestor) {
		i.decoders = append([]Decoder{d}, i.decoders...)
	}
}

func WithFallback(d Decoder) IngestorOption {
	return func(i *Ingestor) {
		i.fallback = d
	}
}

func NewIngestor(options ...IngestorOption) *Ingestor {
	ret := &Ingestor{
		resolver: NewDefaultResolver(),
		decoders: []Decoder{
			&HTMLDecoder{},
			&MarkdownDecoder{},
			&PlainTextDecoder{},
		},
		fallback: &RawTextDecoder{},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Resolve turns an attachment reference into bytes plus naming metadata. A
// failed resolution yields an Error of kind not-found.
func (i *Ingestor) Resolve(ctx context.Context, ref string) (*Attachment, error) {
	filename, contentType, data, err := i.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, newError(ErrKindNotFound, FilenameForRef(ref), err)
	}
	if filename == "" {
		filename = FilenameForRef(ref)
	}
	return &Attachment{
		Ref:         ref,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
		State:       StatePending,
	}, nil
}

// Decode extracts text from a resolved attachment and records the outcome on
// the attachment itself. An empty extracted string is a successful decode.
func (i *Ingestor) Decode(att *Attachment) (string, error) {
	dec := i.decoderFor(att.ContentType, att.Filename)

	text, err := dec.Decode(att.Data, att.Filename)
	if err != nil {
		att.State = StateFailed
		att.Reason = err.Error()
		log.Warn().Str("filename", att.Filename).Str("content_type", att.ContentType).
			Err(err).Msg("attachment decode failed")
		return "", newError(ErrKindDecodeFailed, att.Filename, err)
	}

	att.State = StateDecoded
	att.Text = text
	log.Debug().Str("filename", att.Filename).Int("chars", len(text)).Msg("attachment decoded")
	return text, nil
}

func (i *Ingestor) decoderFor(contentType, filename string) Decoder {
	ct := normalizeContentType(contentType)
	if ct != "" {
		for _, d := range i.decoders {
			for _, c := range d.ContentTypes() {
				if c == ct {
					return d
				}
			}
		}
	}

	lower := strings.ToLower(filename)
	for _, d := range i.decoders {
		for _, suffix := range d.Suffixes() {
			if strings.HasSuffix(lower, suffix) {
				return d
			}
		}
	}

	return i.fallback
}

func normalizeContentType(ct string) string {
	// strip parameters such as "; charset=utf-8"
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Prompt builds the final prompt from extracted document text and the user's
// own text. The document text is prepended even when empty; callers that had
// no successful decode pass the user text through unchanged instead.
func Prompt(documentText, userText string) string {
	return documentText + "\n\n" + userText
}
