// Package speech turns streaming assistant text into speakable segments
// and synthesized audio.
//
// A Segmenter consumes an append-only text buffer arriving in
// arbitrary-sized increments and yields complete segments as soon as
// they are safe to synthesize: it never splices a half-received list
// into unrelated prose and never emits a dangling sentence fragment.
// Remaining content is force-flushed at end of turn so nothing is
// silently dropped.
package speech

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// minProseFlush is the prose length at which a pending block is
	// flushed even without sentence-final punctuation.
	minProseFlush = 160

	// minSentenceFragment is the smallest sentence-fallback segment worth
	// synthesizing on its own; shorter cuts carry forward.
	minSentenceFragment = 60
)

var (
	listItemRe  = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.*?)\s*$`)
	headerRe    = regexp.MustCompile(`^\s*#{1,6}\s+(.*?)\s*$`)
	listStartRe = regexp.MustCompile(`(?:^|\n)\s*(?:[-*•]|\d+[.)])\s+`)
)

// Segmenter holds the unemitted remainder of a streaming turn. One
// Segmenter serves exactly one turn and is not safe for concurrent use;
// the turn's driving goroutine owns it.
type Segmenter struct {
	buf string
}

// Push appends an increment of model text and returns any segments that
// became safe to speak.
func (s *Segmenter) Push(text string) []string {
	s.buf += text
	segs, rem := splitLineSegments(s.buf)
	s.buf = rem

	// Sentence-boundary fallback: only when the line strategy produced
	// nothing and no list has started, so audio can begin before the
	// first newline arrives.
	if len(segs) == 0 && s.buf != "" && !listStartRe.MatchString(s.buf) {
		var cuts []string
		cuts, s.buf = splitSentences(s.buf)
		segs = append(segs, cuts...)
	}
	return segs
}

// Flush force-emits everything still buffered, including an open list or
// unfinished sentence. Called at end of turn and immediately before a
// tool call executes, so the user hears the lead-in before tool latency.
func (s *Segmenter) Flush() []string {
	if strings.TrimSpace(s.buf) == "" {
		s.buf = ""
		return nil
	}
	segs, rem := splitLineSegments(s.buf + "\n")
	if t := strings.TrimSpace(rem); t != "" {
		segs = append(segs, t)
	}
	s.buf = ""
	return segs
}

// Pending reports whether any unemitted text remains buffered.
func (s *Segmenter) Pending() bool {
	return strings.TrimSpace(s.buf) != ""
}

// splitLineSegments is the line/list-aware strategy. It operates only on
// content up through the last completed newline; everything after the
// final newline is held back as tail since it may still grow. Pending
// list items and prose lines that were not flushed are reassembled into
// the returned remainder.
func splitLineSegments(buffer string) (segments []string, remainder string) {
	if buffer == "" {
		return nil, ""
	}
	lines := strings.Split(buffer, "\n")
	if len(lines) == 1 {
		return nil, buffer // no complete line yet
	}
	complete, tail := lines[:len(lines)-1], lines[len(lines)-1]

	var textLines []string
	var listItems []string
	inList := false

	flushText := func(force bool) {
		if len(textLines) == 0 {
			return
		}
		joined := strings.TrimSpace(strings.Join(textLines, "\n"))
		if joined == "" {
			textLines = nil
			return
		}
		if force || len(joined) >= minProseFlush || endsSentence(joined) {
			segments = append(segments, joined)
			textLines = nil
		}
	}

	// endList closes a pending list: two or more items become one
	// segment; a single item folds back into the surrounding prose.
	endList := func() {
		defer func() { listItems = nil; inList = false }()
		if len(listItems) == 0 {
			return
		}
		if len(listItems) >= 2 {
			bullets := make([]string, len(listItems))
			for i, it := range listItems {
				bullets[i] = "- " + it
			}
			segments = append(segments, strings.Join(bullets, "\n"))
			return
		}
		textLines = append(textLines, listItems[0])
	}

	for _, ln := range complete {
		raw := strings.TrimRight(ln, " \t")
		if strings.TrimSpace(raw) == "" {
			endList()
			flushText(true)
			continue
		}
		if m := headerRe.FindStringSubmatch(raw); m != nil {
			raw = m[1]
		}
		if m := listItemRe.FindStringSubmatch(raw); m != nil {
			flushText(true)
			inList = true
			listItems = append(listItems, m[1])
			continue
		}
		if inList {
			endList()
		}
		textLines = append(textLines, raw)
		if endsLine(raw) {
			flushText(false)
		}
	}

	// Unflushed blocks plus the tail become the next call's buffer.
	var pending []string
	if inList && len(listItems) > 0 {
		numbered := make([]string, len(listItems))
		for i, it := range listItems {
			numbered[i] = fmt.Sprintf("%d. %s", i+1, it)
		}
		pending = append(pending, strings.Join(numbered, "\n"))
	}
	if len(textLines) > 0 {
		pending = append(pending, strings.Join(textLines, "\n"))
	}
	pending = append(pending, tail)
	return segments, strings.Join(pending, "\n")
}

// splitSentences cuts the buffer at newlines or sentence-ending
// punctuation (with trailing closing quotes/brackets attached). Cuts
// shorter than minSentenceFragment are carried forward and merged with
// later text instead of being spoken alone.
func splitSentences(buffer string) (segments []string, remainder string) {
	const trailing = `"')]}`

	runes := []rune(buffer)
	start := 0

	// cut emits runes[start:end) if it is long enough to speak. A short
	// cut stays put: the buffer from its start onward is left untouched
	// so later text (and its newlines) can still merge with it.
	cut := func(end int) bool {
		c := strings.TrimSpace(string(runes[start:end]))
		if c == "" {
			return true
		}
		if len(c) < minSentenceFragment {
			return false
		}
		segments = append(segments, c)
		return true
	}

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\n':
			if !cut(i) {
				return segments, string(runes[start:])
			}
			start = i + 1
		case '.', '!', '?':
			end := i + 1
			for end < len(runes) && strings.ContainsRune(trailing, runes[end]) {
				end++
			}
			if !cut(end) {
				return segments, string(runes[start:])
			}
			start = end
			i = end - 1
		}
	}
	return segments, string(runes[start:])
}

func endsSentence(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") ||
		strings.HasSuffix(s, "?") || strings.HasSuffix(s, ":")
}

func endsLine(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}
