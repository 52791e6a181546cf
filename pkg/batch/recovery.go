package batch

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MalformedBlockError describes a URL line without an out= line
type MalformedBlockError struct {
	Line int
	URL  string
}

func (e *MalformedBlockError) Error() string {
	return fmt.Sprintf("line %d: %s has no out= line", e.Line, e.URL)
}

// keyPrefix starts the comment line carrying an item's dedup key. The
// bulk transfer skips comment lines.
const keyPrefix = "# key="

// FormatRecoveryFile renders items as bulk transfer input:
//
//	# key=<key>
//	<url>
//	  out=<filename>
//
// The key line is left out for items without a key.
func FormatRecoveryFile(items []Item) []byte {
	var b strings.Builder
	for _, item := range items {
		if item.Key != "" {
			b.WriteString(keyPrefix)
			b.WriteString(item.Key)
			b.WriteByte('\n')
		}
		b.WriteString(item.URL)
		b.WriteString("\n  out=")
		b.WriteString(item.Filename)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ParseRecoveryFile reads back the blocks written by FormatRecoveryFile.
// A key line applies to the URL line right after it; blocks without one
// have an empty key. Blocks without an out= line are dropped and reported;
// other lines are ignored.
func ParseRecoveryFile(r io.Reader) ([]Item, []*MalformedBlockError, error) {
	var (
		items     []Item
		malformed []*MalformedBlockError
		pending   *Item
		pendingAt int
		key       string
	)

	flushPending := func() {
		if pending != nil {
			malformed = append(malformed, &MalformedBlockError{Line: pendingAt, URL: pending.URL})
			pending = nil
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			key = ""
			if k, ok := strings.CutPrefix(line, keyPrefix); ok {
				key = strings.TrimSpace(k)
			}
		case strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://"):
			flushPending()
			pending = &Item{URL: line, Key: key}
			pendingAt = lineNo
			key = ""
		case strings.HasPrefix(line, "out="):
			if pending == nil {
				continue
			}
			pending.Filename = strings.TrimPrefix(line, "out=")
			if pending.Filename == "" {
				flushPending()
				continue
			}
			items = append(items, *pending)
			pending = nil
		}
	}
	flushPending()

	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return items, malformed, nil
}
