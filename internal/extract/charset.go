package extract

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/hitoshi/feedpipe/internal/model"
)

// sniffLength はmetaタグの文字コード指定を探す先頭バイト数。
const sniffLength = 2048

type encoding int

const (
	encodingUTF8 encoding = iota
	encodingLatin1
)

func (e encoding) String() string {
	if e == encodingLatin1 {
		return "iso-8859-1"
	}
	return "utf-8"
}

// detectEncoding はContent-Typeヘッダー、先頭2048バイトのcharset指定、UTF-8の順で文字コードを決める。
// 判定対象はUTF-8とLatin-1のみで、それ以外の指定は無視する。
func detectEncoding(contentType string, body []byte) encoding {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "utf-8"):
		return encodingUTF8
	case strings.Contains(ct, "iso-8859-1"), strings.Contains(ct, "latin1"):
		return encodingLatin1
	}

	head := bytes.ToLower(body[:min(len(body), sniffLength)])
	switch {
	case bytes.Contains(head, []byte("charset=utf-8")), bytes.Contains(head, []byte(`charset="utf-8"`)):
		return encodingUTF8
	case bytes.Contains(head, []byte("charset=iso-8859-1")):
		return encodingLatin1
	}
	return encodingUTF8
}

// decode はバイト列を指定の文字コードで文字列に変換する。
func decode(body []byte, enc encoding) (string, error) {
	if enc == encodingLatin1 {
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
		if err != nil {
			return "", &model.EncodingError{Charset: enc.String(), Err: err}
		}
		return string(out), nil
	}

	if !utf8.Valid(body) {
		return "", &model.EncodingError{Charset: enc.String(), Err: errors.New("invalid UTF-8 sequence")}
	}
	return string(body), nil
}
