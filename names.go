package fbxio

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// NameEncoder converts UTF-8 names and paths to the byte encoding the
// native side reads. A nil *NameEncoder passes bytes through unchanged.
type NameEncoder struct {
	charset string
	enc     encoding.Encoding
}

// NewNameEncoder looks charset up by its WHATWG label, e.g. "utf-8",
// "shift_jis", "gbk" or "windows-1252". An empty label means UTF-8.
func NewNameEncoder(charset string) (*NameEncoder, error) {
	label := strings.TrimSpace(strings.ToLower(charset))
	if label == "" || label == "utf-8" || label == "utf8" {
		return &NameEncoder{charset: "utf-8", enc: unicode.UTF8}, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown name encoding %q: %w", charset, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = label
	}
	return &NameEncoder{charset: name, enc: enc}, nil
}

func (e *NameEncoder) Charset() string {
	if e == nil {
		return "utf-8"
	}
	return e.charset
}

func (e *NameEncoder) passthrough() bool {
	return e == nil || e.enc == nil || e.enc == unicode.UTF8
}

func (e *NameEncoder) Encode(s string) ([]byte, error) {
	if e.passthrough() {
		return []byte(s), nil
	}
	b, err := e.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%q is not representable in %s: %w", s, e.charset, err)
	}
	return b, nil
}

func (e *NameEncoder) Decode(b []byte) (string, error) {
	if e.passthrough() {
		return string(b), nil
	}
	out, err := e.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode %s name: %w", e.charset, err)
	}
	return string(out), nil
}
