// Package sse recovers framed events from an incrementally delivered
// event-stream body.
package sse

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"chatstream/internal/domain"
)

const (
	eventMarker = "event:"
	dataMarker  = "data:"
)

// Parser turns byte chunks into framed events. Chunk boundaries may fall
// anywhere, including inside a multi-byte rune or a line terminator; the
// emitted sequence depends only on the concatenated bytes.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	dec     transform.Transformer
	undec   []byte // trailing bytes of an incomplete rune
	scratch []byte
	line    []byte // decoded text not yet terminated by '\n'

	eventType string // set by an event line, consumed by the next data line
}

// NewParser creates a Parser with an empty decoding context.
func NewParser() *Parser {
	return &Parser{dec: unicode.UTF8.NewDecoder()}
}

// Feed decodes chunk, appends it to the line buffer and returns every event
// completed by the lines it terminated. It never fails; lines it does not
// understand are ignored.
func (p *Parser) Feed(chunk []byte) []domain.FramedEvent {
	if len(chunk) == 0 {
		return nil
	}
	p.line = append(p.line, p.decode(chunk, false)...)

	var events []domain.FramedEvent
	consumed := 0
	for {
		i := bytes.IndexByte(p.line[consumed:], '\n')
		if i < 0 {
			break
		}
		raw := p.line[consumed : consumed+i]
		consumed += i + 1
		if ev, ok := p.processLine(string(bytes.TrimSuffix(raw, []byte{'\r'}))); ok {
			events = append(events, ev)
		}
	}
	p.line = append(p.line[:0], p.line[consumed:]...)
	return events
}

// Discard drops all buffered state at end of stream and reports how many
// bytes of unterminated or undecoded input were dropped. Pending event
// fields are cleared as well.
func (p *Parser) Discard() int {
	dropped := len(p.line) + len(p.undec)
	p.line = p.line[:0]
	p.undec = p.undec[:0]
	p.eventType = ""
	p.dec.Reset()
	return dropped
}

// Pending reports whether the parser holds a half-assembled event or an
// unterminated line.
func (p *Parser) Pending() bool {
	return p.eventType != "" || len(p.line) > 0 || len(p.undec) > 0
}

// processLine applies one complete line. Only a data line can finish a
// frame: it pairs with the type set before it. A data line with no pending
// type is dropped, so a stray keep-alive payload cannot shift later frames.
// An empty payload leaves the type pending for the next data line.
func (p *Parser) processLine(line string) (domain.FramedEvent, bool) {
	switch {
	case strings.HasPrefix(line, eventMarker):
		p.eventType = strings.TrimSpace(line[len(eventMarker):])
		return domain.FramedEvent{}, false
	case strings.HasPrefix(line, dataMarker):
		payload := strings.TrimPrefix(line[len(dataMarker):], " ")
		if p.eventType == "" || payload == "" {
			return domain.FramedEvent{}, false
		}
		ev := domain.FramedEvent{Type: p.eventType, Payload: payload}
		p.eventType = ""
		return ev, true
	default:
		return domain.FramedEvent{}, false
	}
}

// decode runs src through the UTF-8 decoder, carrying an incomplete trailing
// rune over to the next call. Invalid sequences become U+FFFD.
func (p *Parser) decode(src []byte, atEOF bool) []byte {
	if len(p.undec) > 0 {
		src = append(p.undec, src...)
		p.undec = nil
	}

	// Each input byte yields at most one replacement rune.
	need := len(src)*utf8.RuneLen(utf8.RuneError) + utf8.UTFMax
	if cap(p.scratch) < need {
		p.scratch = make([]byte, need)
	}
	dst := p.scratch[:need]

	var out []byte
	for len(src) > 0 {
		nDst, nSrc, err := p.dec.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		switch {
		case err == nil:
		case errors.Is(err, transform.ErrShortDst) && (nDst > 0 || nSrc > 0):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			p.undec = append([]byte(nil), src...)
			return out
		default:
			// Unreachable for the UTF-8 decoder; keep the remaining bytes
			// rather than spin.
			p.undec = append([]byte(nil), src...)
			return out
		}
		if err == nil {
			break
		}
	}
	return out
}
