package codec

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// strings are stored like java.io.DataOutput.writeUTF does it : NUL as two bytes and
// characters outside the basic plane as two encoded surrogates
func appendUTF(dst []byte, s string) ([]byte, error) {
	start := len(dst)
	dst = append(dst, 0, 0)
	for _, r := range s {
		switch {
		case r == 0:
			dst = append(dst, 0xC0, 0x80)
		case r < 0x80:
			dst = append(dst, byte(r))
		case r < 0x800:
			dst = append(dst, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			dst = append3(dst, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			dst = append3(dst, hi)
			dst = append3(dst, lo)
		}
	}
	n := len(dst) - start - 2
	if n > maxUTFLen {
		return dst[:start], fmt.Errorf("%w : %d", ErrStringTooLong, n)
	}
	dst[start] = byte(n >> 8)
	dst[start+1] = byte(n)
	return dst, nil
}

func append3(dst []byte, r rune) []byte {
	return append(dst, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
}

func decodeUTF(b []byte) (string, error) {
	res := make([]byte, 0, len(b))
	var pending rune = -1
	flush := func() {
		if pending >= 0 {
			res = utf8.AppendRune(res, utf8.RuneError)
			pending = -1
		}
	}
	for i := 0; i < len(b); {
		c := b[i]
		var r rune
		switch {
		case c < 0x80:
			r = rune(c)
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed string at byte %d", i)
			}
			r = rune(c&0x1F)<<6 | rune(b[i+1]&0x3F)
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed string at byte %d", i)
			}
			r = rune(c&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			i += 3
		default:
			return "", fmt.Errorf("malformed string at byte %d", i)
		}

		switch {
		case utf16.IsSurrogate(r) && r < 0xDC00:
			flush()
			pending = r
		case utf16.IsSurrogate(r):
			if pending >= 0 {
				res = utf8.AppendRune(res, utf16.DecodeRune(pending, r))
				pending = -1
			} else {
				res = utf8.AppendRune(res, utf8.RuneError)
			}
		default:
			flush()
			res = utf8.AppendRune(res, r)
		}
	}
	flush()
	return string(res), nil
}
