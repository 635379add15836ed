package stream

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// sseFrame is one dispatched server-sent event
type sseFrame struct {
	Event string
	Data  []byte
}

type sseParser struct {
	reader *bufio.Reader
}

func newSSEParser(r io.Reader) *sseParser {
	return &sseParser{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next reads lines until a blank line dispatches a frame
func (p *sseParser) Next() (sseFrame, error) {
	var eventType string
	var dataLines []string

	for {
		line, err := p.reader.ReadString('\n')
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return sseFrame{}, err
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if len(dataLines) == 0 && eventType == "" {
				if eof {
					return sseFrame{}, io.EOF
				}
				continue
			}
			return sseFrame{Event: eventType, Data: []byte(strings.Join(dataLines, "\n"))}, nil
		}

		// Comment lines keep the connection alive
		if !strings.HasPrefix(line, ":") {
			field, value := splitSSEField(line)
			switch field {
			case "event":
				eventType = value
			case "data":
				dataLines = append(dataLines, value)
			}
		}

		if eof {
			if len(dataLines) == 0 && eventType == "" {
				return sseFrame{}, io.EOF
			}
			return sseFrame{Event: eventType, Data: []byte(strings.Join(dataLines, "\n"))}, nil
		}
	}
}

func splitSSEField(line string) (field string, value string) {
	index := strings.IndexByte(line, ':')
	if index < 0 {
		return line, ""
	}
	field = line[:index]
	value = strings.TrimPrefix(line[index+1:], " ")
	return field, value
}
