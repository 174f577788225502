package grading

import "regexp"

// Term is an explicitly ordered representation of a term label. Raw string
// comparison of labels like "HK1 2024-2025" vs "HK2 2023-2024" does not sort
// chronologically, so labels are decomposed into (year, sequence) when the
// label carries them.
type Term struct {
	Raw  string
	Year int // 0 when the label has no year
	Seq  int // semester number within the year, 0 when absent
}

var termDigits = regexp.MustCompile(`\d+`)

// ParseTerm extracts ordering information from a free-form term label. A
// four-digit group is the academic year; the first remaining group is the
// semester sequence. Labels with no digits order only by their raw text.
func ParseTerm(label string) Term {
	t := Term{Raw: label}
	for _, m := range termDigits.FindAllString(label, -1) {
		if len(m) == 4 && t.Year == 0 {
			t.Year = atoi(m)
			continue
		}
		if t.Seq == 0 {
			t.Seq = atoi(m)
		}
	}
	return t
}

// Compare orders two terms chronologically: by year, then sequence, then raw
// label as the last resort. Returns -1, 0 or 1.
func (t Term) Compare(o Term) int {
	if t.Year != o.Year {
		if t.Year < o.Year {
			return -1
		}
		return 1
	}
	if t.Seq != o.Seq {
		if t.Seq < o.Seq {
			return -1
		}
		return 1
	}
	switch {
	case t.Raw < o.Raw:
		return -1
	case t.Raw > o.Raw:
		return 1
	}
	return 0
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
