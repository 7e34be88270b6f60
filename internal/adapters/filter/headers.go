package filter

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/textproto"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/metrics"
)

// AnnotateMessage rewrites the header block of raw so it carries exactly one
// copy of each triage header. When classification failed only the error
// header is added. The body is copied byte for byte.
func AnnotateMessage(raw []byte, names config.HeaderNames, result *core.Classified, classifyErr error) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	header, err := textproto.ReadHeader(br)
	if err != nil {
		err = fmt.Errorf("failed to read message header: %w", err)
		return stripTriageLines(raw, names, err), err
	}

	for _, name := range triageHeaders(names) {
		header.Del(name)
	}

	if classifyErr != nil || result == nil {
		reason := "classification unavailable"
		if classifyErr != nil {
			reason = classifyErr.Error()
		}
		setHeader(&header, names.Error, sanitizeHeaderValue(reason))
	} else {
		setHeader(&header, names.Evidence, core.FormatEvidence(result))
		setHeader(&header, names.Move, fmt.Sprint(result.Move))
		setHeader(&header, names.Confidence, metrics.FormatConfidence(result.PrimaryConfidence))
		setHeader(&header, names.Label, result.PrimaryLabel)
		setHeader(&header, names.Folder, result.PrimaryFolder)
	}

	var out bytes.Buffer
	if err := textproto.WriteHeader(&out, header); err != nil {
		return raw, fmt.Errorf("failed to write message header: %w", err)
	}
	if _, err := io.Copy(&out, br); err != nil {
		return raw, fmt.Errorf("failed to copy message body: %w", err)
	}
	return out.Bytes(), nil
}

func triageHeaders(names config.HeaderNames) []string {
	var out []string
	for _, name := range []string{names.Folder, names.Label, names.Confidence, names.Move, names.Evidence, names.Error} {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// stripTriageLines drops triage fields and their continuation lines from a
// header block that could not be parsed, and prepends the error header
func stripTriageLines(raw []byte, names config.HeaderNames, cause error) []byte {
	drop := make(map[string]bool)
	for _, name := range triageHeaders(names) {
		drop[strings.ToLower(name)] = true
	}

	var out bytes.Buffer
	if names.Error != "" {
		out.WriteString(names.Error + ": " + sanitizeHeaderValue(cause.Error()) + "\r\n")
	}

	rest := raw
	skipping := false
	for len(rest) > 0 {
		end := bytes.IndexByte(rest, '\n') + 1
		if end == 0 {
			end = len(rest)
		}
		line := rest[:end]
		if len(bytes.TrimRight(line, "\r\n")) == 0 {
			// end of the header block
			break
		}
		rest = rest[end:]

		if line[0] == ' ' || line[0] == '\t' {
			if !skipping {
				out.Write(line)
			}
			continue
		}
		skipping = false
		if colon := bytes.IndexByte(line, ':'); colon > 0 {
			skipping = drop[strings.ToLower(strings.TrimSpace(string(line[:colon])))]
		}
		if !skipping {
			out.Write(line)
		}
	}
	out.Write(rest)
	return out.Bytes()
}

func setHeader(h *textproto.Header, name, value string) {
	if name == "" || value == "" {
		return
	}
	h.Add(name, value)
}

func sanitizeHeaderValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
