package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
	"time"

	"webharvest/pkg/models"
	"webharvest/pkg/utils"
)

// Segments are WARC/1.0 flavoured: a sequence of records, each a header
// block (CRLF-separated named fields), a blank line, the payload, and a
// trailing blank line. Content records carry the captured HTTP response as
// their payload (status line, headers, blank line, body); bookkeeping
// records carry warc-fields text.

const (
	warcVersion = "WARC/1.0"

	warcTypeResponse = "response"
	warcTypeInfo     = "warcinfo"

	contentTypeHTTPResponse = "application/http;msgtype=response"
	contentTypeWARCFields   = "application/warc-fields"
)

// writeRecord serializes one CaptureRecord.
func writeRecord(w io.Writer, rec *models.CaptureRecord) error {
	recType := warcTypeResponse
	contentType := contentTypeHTTPResponse
	var payload []byte
	if rec.Kind == models.KindBookkeeping {
		recType = warcTypeInfo
		contentType = contentTypeWARCFields
		payload = rec.Body
	} else {
		payload = encodeHTTPPayload(rec)
	}

	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "%s\r\n", warcVersion)
	fmt.Fprintf(&hdr, "WARC-Type: %s\r\n", recType)
	fmt.Fprintf(&hdr, "WARC-Record-ID: <urn:uuid:%s>\r\n", rec.ID)
	fmt.Fprintf(&hdr, "WARC-Date: %s\r\n", rec.FetchedAt.UTC().Format(time.RFC3339))
	if rec.TargetURI != "" {
		fmt.Fprintf(&hdr, "WARC-Target-URI: %s\r\n", rec.TargetURI)
	}
	fmt.Fprintf(&hdr, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&hdr, "Content-Length: %d\r\n", len(payload))
	hdr.WriteString("\r\n")

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n\r\n")
	return err
}

// encodeHTTPPayload renders the captured response as an HTTP/1.1 message.
func encodeHTTPPayload(rec *models.CaptureRecord) []byte {
	var b bytes.Buffer
	statusText := http.StatusText(rec.Status)
	if statusText == "" {
		statusText = "Unknown"
	}
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", rec.Status, statusText)

	// Deterministic header order keeps segment bytes reproducible.
	keys := make([]string, 0, len(rec.Headers))
	for k := range rec.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, rec.Headers[k])
	}
	b.WriteString("\r\n")
	b.Write(rec.Body)
	return b.Bytes()
}

// readRecord parses the next record from the stream.
// Returns io.EOF at a clean end of the segment.
func readRecord(br *bufio.Reader) (*models.CaptureRecord, error) {
	// Skip record separators left by the previous record.
	versionLine, err := nextNonBlankLine(br)
	if err != nil {
		return nil, err // io.EOF propagates cleanly
	}
	if !strings.HasPrefix(versionLine, "WARC/") {
		return nil, fmt.Errorf("%w: expected WARC version line, got %q", utils.ErrArchiveRead, versionLine)
	}

	tp := textproto.NewReader(br)
	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: reading record headers: %w", utils.ErrArchiveRead, err)
	}

	length, err := strconv.Atoi(mimeHeader.Get("Content-Length"))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: missing or invalid Content-Length", utils.ErrArchiveRead)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, fmt.Errorf("%w: reading %d payload bytes: %w", utils.ErrArchiveRead, length, err)
	}

	rec := &models.CaptureRecord{
		ID:        strings.TrimSuffix(strings.TrimPrefix(mimeHeader.Get("WARC-Record-ID"), "<urn:uuid:"), ">"),
		TargetURI: mimeHeader.Get("WARC-Target-URI"),
	}
	if ts, tsErr := time.Parse(time.RFC3339, mimeHeader.Get("WARC-Date")); tsErr == nil {
		rec.FetchedAt = ts
	}

	switch mimeHeader.Get("WARC-Type") {
	case warcTypeResponse:
		rec.Kind = models.KindContent
		if err := decodeHTTPPayload(rec, payload); err != nil {
			return nil, err
		}
	case warcTypeInfo:
		rec.Kind = models.KindBookkeeping
		rec.Body = payload
	default:
		// Unknown record types are preserved as bookkeeping so iteration
		// order and counts stay faithful to the segment.
		rec.Kind = models.KindBookkeeping
		rec.Body = payload
	}

	return rec, nil
}

// decodeHTTPPayload splits an HTTP/1.1 message into status, headers, body.
func decodeHTTPPayload(rec *models.CaptureRecord, payload []byte) error {
	sep := bytes.Index(payload, []byte("\r\n\r\n"))
	if sep < 0 {
		return fmt.Errorf("%w: HTTP payload missing header/body separator", utils.ErrArchiveRead)
	}
	headerBlock := string(payload[:sep])
	rec.Body = payload[sep+4:]

	lines := strings.Split(headerBlock, "\r\n")
	statusParts := strings.SplitN(lines[0], " ", 3)
	if len(statusParts) < 2 || !strings.HasPrefix(statusParts[0], "HTTP/") {
		return fmt.Errorf("%w: malformed status line %q", utils.ErrArchiveRead, lines[0])
	}
	status, err := strconv.Atoi(statusParts[1])
	if err != nil {
		return fmt.Errorf("%w: malformed status code in %q", utils.ErrArchiveRead, lines[0])
	}
	rec.Status = status

	rec.Headers = make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		if k, v, found := strings.Cut(line, ":"); found {
			rec.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return nil
}

// nextNonBlankLine reads lines until a non-blank one, returned without CRLF.
func nextNonBlankLine(br *bufio.Reader) (string, error) {
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			return trimmed, nil
		}
		if err != nil {
			return "", err
		}
	}
}
