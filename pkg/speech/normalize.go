package speech

import (
	"regexp"
	"strings"
)

var (
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	spacesRe = regexp.MustCompile(`\s+`)
)

// NormalizeOptions control speech normalization.
type NormalizeOptions struct {
	// SpeakEmails rewrites e-mail addresses into spoken form
	// ("ada@mail.example.com" -> "ada at mail dot example dot com").
	SpeakEmails bool
}

// Normalize converts display text (possibly markdown with lists) into
// something that sounds natural when spoken: code fences, headers and
// emphasis markers are removed, and list items are read as one sentence
// joined with "then".
func Normalize(text string, opts NormalizeOptions) string {
	s := strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
	if s == "" {
		return ""
	}

	var items []string
	var out []string
	flushItems := func() {
		switch len(items) {
		case 0:
		case 1:
			out = append(out, items[0])
		default:
			out = append(out, strings.Join(items, ", then "))
		}
		items = nil
	}

	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if m := headerRe.FindStringSubmatch(ln); m != nil {
			ln = strings.TrimSpace(m[1])
		}
		if m := listItemRe.FindStringSubmatch(ln); m != nil {
			items = append(items, strings.TrimSpace(m[1]))
			continue
		}
		flushItems()
		ln = strings.NewReplacer("**", "", "*", "", "_", "").Replace(ln)
		out = append(out, ln)
	}
	flushItems()

	spoken := strings.Join(out, " ")
	if opts.SpeakEmails {
		spoken = emailRe.ReplaceAllStringFunc(spoken, speakEmail)
	}
	return strings.TrimSpace(spacesRe.ReplaceAllString(spoken, " "))
}

// speakEmail rewrites one address for speech: local part and domain are
// split, "@" becomes "at" and every "." becomes "dot". Multi-label
// domains read as a single run ("mail dot example dot com") rather than
// pausing per label.
func speakEmail(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return addr
	}
	speakDots := func(s string) string {
		parts := strings.Split(s, ".")
		return strings.Join(parts, " dot ")
	}
	return speakDots(local) + " at " + speakDots(domain)
}
