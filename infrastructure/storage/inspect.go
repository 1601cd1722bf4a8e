package storage

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindMessage      = "MESSAGE"
	KindMessageIndex = "MESSAGE_INDEX"
	KindUser         = "USER"
	KindTokenIndex   = "TOKEN_INDEX"
	KindSequence     = "SEQUENCE"
	KindUnknown      = "UNKNOWN"
)

// Record is a human readable view of one badger entry.
type Record struct {
	Key    string
	Kind   string
	At     time.Time
	Owner  string
	Detail string
}

// DescribeRecord decodes any key written by the repositories.
// It never fails: undecodable values are reported in Detail.
func DescribeRecord(key string, value []byte) Record {
	rec := Record{Key: key, Kind: KindUnknown}
	switch {
	case strings.HasPrefix(key, messageIndexPrefix):
		rec.Kind = KindMessageIndex
		rec.Detail = string(value)
	case strings.HasPrefix(key, messagePrefix):
		rec.Kind = KindMessage
		m, err := unmarshalMessage(value)
		if err != nil {
			rec.Detail = fmt.Sprintf("Error: %v", err)
			return rec
		}
		rec.At, rec.Owner = m.CreatedAt, m.Sender
		rec.Detail = m.Text
		if m.Image != "" {
			rec.Detail = strings.TrimSpace(m.Text + " [image " + m.Image + "]")
		}
	case strings.HasPrefix(key, userPrefix):
		rec.Kind = KindUser
		u, err := unmarshalUser(value)
		if err != nil {
			rec.Detail = fmt.Sprintf("Error: %v", err)
			return rec
		}
		rec.At, rec.Owner = u.UpdatedAt, u.Email
		rec.Detail = fmt.Sprintf("name=%q token=%s", u.Name, shorten(u.Token, 12))
	case strings.HasPrefix(key, tokenIndexPrefix):
		rec.Kind = KindTokenIndex
		token, email, _ := strings.Cut(strings.TrimPrefix(key, tokenIndexPrefix), "\x00")
		rec.Key = tokenIndexPrefix + shorten(token, 12)
		rec.Owner = email
	case key == messageSequenceKey:
		rec.Kind = KindSequence
	}
	return rec
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
