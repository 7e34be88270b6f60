package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
)

// ErrEmptyMessage is returned for an empty input
var ErrEmptyMessage = errors.New("empty message")

const (
	// DefaultMaxBodySize bounds the body sample in bytes
	DefaultMaxBodySize = 4096
	// DefaultMaxLinks bounds the number of extracted links
	DefaultMaxLinks = 100

	// maxPartSize bounds how much of one text part is read
	maxPartSize = 1 << 20
)

var (
	replySubject = regexp.MustCompile(`(?i)^\s*(re|aw|sv|antw)\s*:`)
	quotedHeader = regexp.MustCompile(`(?i)\bfrom:\s.+@`)
	quotedMarker = regexp.MustCompile(`(?i)\bsent:\s|\bwrote:`)
)

// Options configures an Extractor
type Options struct {
	// SelfAddresses are the mailbox owner's addresses
	SelfAddresses []string
	MaxBodySize   int
	MaxLinks      int
}

// Extractor builds feature records from RFC 5322 messages
type Extractor struct {
	self        []string
	maxBodySize int
	maxLinks    int
	text        *utils.TextProcessor
	logger      *zap.Logger
}

// NewExtractor creates a new Extractor
func NewExtractor(opts Options, text *utils.TextProcessor, logger *zap.Logger) *Extractor {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = DefaultMaxLinks
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}

	var self []string
	for _, addr := range opts.SelfAddresses {
		if addr = strings.ToLower(strings.TrimSpace(addr)); addr != "" {
			self = append(self, addr)
		}
	}

	return &Extractor{
		self:        self,
		maxBodySize: opts.MaxBodySize,
		maxLinks:    opts.MaxLinks,
		text:        text,
		logger:      logger,
	}
}

// parts collects what the MIME walk found
type parts struct {
	plain       string
	html        string
	attachments map[string]struct{}
}

// Extract parses a raw message into a feature record
func (e *Extractor) Extract(id string, raw io.Reader) (*core.FeatureRecord, error) {
	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyMessage
	}

	entity, err := message.Read(bytes.NewReader(data))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if err != nil {
		e.logger.Debug("Message uses an unknown charset or encoding", zap.String("message_id", id), zap.Error(err))
	}

	header := mail.Header{Header: entity.Header}
	found := &parts{attachments: make(map[string]struct{})}
	e.walk(entity, found)

	body := found.plain
	if strings.TrimSpace(body) == "" && found.html != "" {
		body = html2text.HTML2Text(found.html)
	}
	body = e.text.ProcessText(body, e.maxBodySize)

	subject, err := header.Subject()
	if err != nil {
		subject = header.Get("Subject")
	}
	subject = e.text.CollapseWhitespace(e.text.SanitizeUTF8(subject))

	from := firstAddress(header, "From")
	headers := collectHeaders(entity.Header)

	rec := &core.FeatureRecord{
		ID:             id,
		Subject:        subject,
		Body:           body,
		From:           from,
		FromDomain:     domainOf(from),
		ReplyTo:        firstAddress(header, "Reply-To"),
		HasListID:      headers["list-id"] != "",
		HasUnsubscribe: headers["list-unsubscribe"] != "" || headers["list-unsubscribe-post"] != "",
		HasInReplyTo:   headers["in-reply-to"] != "",
		AttachmentExts: found.attachments,
		Links:          e.links(found),
		Headers:        headers,
		Auth:           ParseAuthResults(firstNonEmpty(headers["authentication-results"], headers["arc-authentication-results"])),
	}
	rec.IsReplyChain = isReplyChain(headers, subject, body)
	rec.MentionsMailbox = e.mentionsMailbox(subject, body)

	return rec, nil
}

func (e *Extractor) walk(entity *message.Entity, found *parts) {
	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return
			}
			if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				e.logger.Debug("Stopped reading multipart body", zap.Error(err))
				return
			}
			e.walk(part, found)
		}
	}

	mediaType, ctParams, _ := entity.Header.ContentType()
	disposition, dispParams, _ := entity.Header.ContentDisposition()

	if name := firstNonEmpty(dispParams["filename"], ctParams["name"]); name != "" {
		if ext := strings.ToLower(filepath.Ext(name)); ext != "" && ext != "." {
			found.attachments[ext] = struct{}{}
		}
		return
	}
	if disposition == "attachment" {
		return
	}

	switch {
	case mediaType == "text/plain" && found.plain == "":
		found.plain = readPart(entity)
	case mediaType == "text/html" && found.html == "":
		found.html = readPart(entity)
	case mediaType == "" && found.plain == "":
		// bare RFC 5322 messages default to text/plain
		found.plain = readPart(entity)
	}
}

func readPart(entity *message.Entity) string {
	content, err := io.ReadAll(io.LimitReader(entity.Body, maxPartSize))
	if err != nil && len(content) == 0 {
		return ""
	}
	return string(content)
}

func (e *Extractor) mentionsMailbox(subject, body string) bool {
	if len(e.self) == 0 {
		return false
	}
	text := strings.ToLower(subject + "\n" + body)
	for _, addr := range e.self {
		if strings.Contains(text, addr) {
			return true
		}
	}
	return false
}

func isReplyChain(headers map[string]string, subject, body string) bool {
	if headers["references"] != "" || replySubject.MatchString(subject) {
		return true
	}
	return quotedHeader.MatchString(body) && quotedMarker.MatchString(body)
}

func firstAddress(header mail.Header, key string) string {
	list, err := header.AddressList(key)
	if err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].Address)
	}
	raw := strings.TrimSpace(header.Get(key))
	if start, end := strings.LastIndex(raw, "<"), strings.LastIndex(raw, ">"); start >= 0 && end > start {
		return strings.TrimSpace(raw[start+1 : end])
	}
	return raw
}

func domainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

func collectHeaders(h message.Header) map[string]string {
	headers := make(map[string]string)
	fields := h.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		if _, seen := headers[key]; seen {
			continue
		}
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
