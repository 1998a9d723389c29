package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	// initialLineBuffer is the scanner's starting line buffer
	initialLineBuffer = 64 * 1024

	// maxLineSize bounds a single stream line. Terminal chunks carry the whole
	// context token, which grows with the conversation.
	maxLineSize = 16 * 1024 * 1024

	// rawExcerptLen bounds the offending line stored in a StreamError
	rawExcerptLen = 120
)

// ConsumeStream reads an NDJSON completion stream from r and assembles the result.
//
// Every non-blank line is decoded as one JSON object. The first line that
// fails to decode aborts with a *StreamError wrapping ErrMalformedStream and
// no partial text. Reading stops at the first chunk with done=true, whose
// context becomes the result context; anything after it is left unread.
// Running out of input before that yields ErrIncompleteStream. A failing
// reader yields a *TransportError.
//
// onChunk, if non-nil, is called for every decoded chunk in order.
func ConsumeStream(r io.Reader, onChunk func(*GenerateChunk)) (*GenerateResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineSize)

	var text strings.Builder
	lineNo := 0
	chunks := 0

	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		chunk, err := decodeChunk(line)
		if err != nil {
			return nil, &StreamError{
				Line: lineNo,
				Kind: ErrMalformedStream,
				Err:  err,
				Raw:  excerpt(line),
			}
		}
		chunks++

		text.WriteString(chunk.Response)
		if onChunk != nil {
			onChunk(chunk)
		}

		if chunk.Done {
			result := &GenerateResult{
				Text:     text.String(),
				Metadata: chunk.metadata(),
				Chunks:   chunks,
			}
			if contextPresent(chunk.Context) {
				result.Context = chunk.Context
			}
			return result, nil
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &StreamError{Line: lineNo + 1, Kind: ErrMalformedStream, Err: err}
		}
		return nil, &TransportError{Message: "reading stream: " + err.Error(), Err: err}
	}

	return nil, &StreamError{Line: lineNo, Kind: ErrIncompleteStream}
}

// decodeChunk decodes a single stream line, which must be a JSON object.
func decodeChunk(line []byte) (*GenerateChunk, error) {
	if line[0] != '{' {
		return nil, errors.New("stream line is not a JSON object")
	}

	var chunk GenerateChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

func excerpt(line []byte) string {
	if len(line) <= rawExcerptLen {
		return string(line)
	}
	return string(line[:rawExcerptLen]) + "..."
}
