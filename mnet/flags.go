package mnet

import (
	"strconv"
	"strings"
)

// Flags is the compact textual tag set carried on every packet (§3). Tags
// are concatenated with no separator, e.g. "s1r1f0"; unknown tags are
// parsed and preserved so the wire format stays forward compatible (§6,
// "Wire compatibility").
type Flags struct {
	Sync      bool // s1: starts a new logical stream
	Reliable  bool // r1: requires acknowledgement
	Ack       bool // a1: this packet IS an acknowledgement
	HasFrag   bool // fN was present at all
	FragFinal uint32 // N from fN; 0 means "more fragments follow"

	unknown []string // any tag this implementation doesn't recognize
}

func (f Flags) String() string {
	var b strings.Builder
	if f.Sync {
		b.WriteString("s1")
	}
	if f.Reliable {
		b.WriteString("r1")
	}
	if f.Ack {
		b.WriteString("a1")
	}
	if f.HasFrag {
		b.WriteString("f")
		b.WriteString(strconv.FormatUint(uint64(f.FragFinal), 10))
	}
	for _, u := range f.unknown {
		b.WriteString(u)
	}
	return b.String()
}

// ParseFlags decodes a flags string into its tag set and never rejects it.
// A tag letter it does not recognize is kept, with its digits, as an
// unknown tag; on a known tag, digits that do not parse as a uint32 are
// read as 0. The codec drops the whole frame only on a genuinely malformed
// arrival (§4.2), never for individual flag characters.
func ParseFlags(s string) Flags {
	var f Flags
	i := 0
	for i < len(s) {
		tag := s[i]
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		numStr := s[i+1 : j]
		num, _ := strconv.ParseUint(numStr, 10, 32)
		switch tag {
		case 's':
			f.Sync = true
		case 'r':
			f.Reliable = true
		case 'a':
			f.Ack = true
		case 'f':
			f.HasFrag = true
			f.FragFinal = uint32(num)
		default:
			f.unknown = append(f.unknown, s[i:j])
		}
		if j == i+1 && numStr == "" {
			// tag with no digits at all (shouldn't happen for known tags,
			// but keep parsing robust against unknown single-letter tags).
			j = i + 1
		}
		i = j
	}
	return f
}

// IsMoreFragments reports whether this packet is a non-final fragment (f0).
func (f Flags) IsMoreFragments() bool {
	return f.HasFrag && f.FragFinal == 0
}

// IsFinalFragment reports whether this packet closes a fragment group
// (fN, N>0) and returns the group's total fragment count.
func (f Flags) IsFinalFragment() (count uint32, ok bool) {
	if f.HasFrag && f.FragFinal > 0 {
		return f.FragFinal, true
	}
	return 0, false
}
