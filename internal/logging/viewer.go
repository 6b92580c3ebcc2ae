package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed JSON log line.
type Entry struct {
	Time     time.Time
	Level    string
	Msg      string
	Criteria string
	Attrs    map[string]any
	Raw      string
	Valid    bool
}

// Filter selects entries for display. Zero values match everything.
type Filter struct {
	Level    string
	Criteria string
	Pattern  *regexp.Regexp
}

// Match reports whether e passes the filter. Unparsed lines never pass a
// level filter.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" && (!e.Valid || LevelFromString(e.Level) < LevelFromString(f.Level)) {
		return false
	}
	if f.Criteria != "" && e.Criteria != f.Criteria {
		return false
	}
	if f.Pattern != nil && !f.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// ParseLine parses a slog JSON line. Lines that are not JSON come back with
// Valid false and only Raw set.
func ParseLine(line string) Entry {
	e := Entry{Raw: line}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return e
	}
	e.Valid = true

	if t, ok := data["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			e.Time = parsed
		}
	}
	e.Level, _ = data["level"].(string)
	e.Msg, _ = data["msg"].(string)
	e.Criteria, _ = data["criteria"].(string)

	e.Attrs = make(map[string]any, len(data))
	for k, v := range data {
		switch k {
		case "time", "level", "msg", "criteria":
		default:
			e.Attrs[k] = v
		}
	}
	return e
}

// Tail returns the entries among the last n lines of path that match f.
func Tail(path string, n int, f Filter) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if n < 0 {
		n = 0
	}
	// Ring of the last n lines.
	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(lines) == n {
			lines = append(lines[:0], lines[1:]...)
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	var out []Entry
	for _, line := range lines {
		if e := ParseLine(line); f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Follow streams entries appended to path after the call until ctx is done.
// When the file is rotated away or truncated, Follow reopens path and reads
// it from the start.
func Follow(ctx context.Context, path string, f Filter, entries chan<- Entry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for {
			chunk, err := reader.ReadString('\n')
			offset += int64(len(chunk))
			if err != nil {
				partial += chunk
				break
			}
			line := strings.TrimSuffix(partial+chunk, "\n")
			partial = ""
			if line == "" {
				continue
			}
			if e := ParseLine(line); f.Match(e) {
				select {
				case entries <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}

		if replaced(file, path, offset) {
			next, err := os.Open(path)
			if err != nil {
				// Between the rename and the new file; try on the next tick.
				continue
			}
			_ = file.Close()
			file, offset, partial = next, 0, ""
			reader.Reset(file)
		}
	}
}

// replaced reports whether path no longer names the open file, or the file
// shrank below what was already read.
func replaced(open *os.File, path string, offset int64) bool {
	cur, err := os.Stat(path)
	if err != nil {
		return false
	}
	was, err := open.Stat()
	if err != nil {
		return true
	}
	return !os.SameFile(cur, was) || cur.Size() < offset
}

// Format renders e on one line: time, level, criteria, message, then the
// remaining attributes sorted by key.
func Format(e Entry, color bool) string {
	if !e.Valid {
		return e.Raw
	}

	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(formatLevel(e.Level, color))
	if e.Criteria != "" {
		fmt.Fprintf(&b, " [%s]", e.Criteria)
	}
	b.WriteByte(' ')
	b.WriteString(e.Msg)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

func formatLevel(level string, color bool) string {
	s := strings.ToUpper(level)
	if len(s) > 5 {
		s = s[:5]
	}
	s = fmt.Sprintf("%-5s", s)
	if !color {
		return s
	}

	switch strings.ToLower(level) {
	case "debug":
		return "\033[90m" + s + "\033[0m"
	case "info":
		return "\033[32m" + s + "\033[0m"
	case "warn", "warning":
		return "\033[33m" + s + "\033[0m"
	case "error":
		return "\033[31m" + s + "\033[0m"
	default:
		return s
	}
}
