package artifacts

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/tendant/simple-ocr-worker/pkg/schema"
)

// encodeText returns data verbatim when it is valid UTF-8 no larger than
// limit, and base64 otherwise.
func encodeText(data []byte, limit int64) (string, string) {
	if int64(len(data)) <= limit && utf8.Valid(data) {
		return string(data), schema.EncodingText
	}
	return base64.StdEncoding.EncodeToString(data), schema.EncodingBase64
}
