package chat

import "strings"

// splitDataURL pulls the mime type and base64 payload out of a
// "data:<mime>;base64,<payload>" URL. Inputs that are not data URLs are
// treated as a bare base64 PNG payload.
func splitDataURL(raw string) (mimeType, data string) {
	const prefix = "data:"
	if !strings.HasPrefix(raw, prefix) {
		return "image/png", raw
	}

	rest := raw[len(prefix):]
	comma := strings.Index(rest, ",")
	if comma < 0 {
		return "image/png", raw
	}

	meta := rest[:comma]
	data = rest[comma+1:]

	mimeType = meta
	if semi := strings.Index(meta, ";"); semi >= 0 {
		mimeType = meta[:semi]
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	return mimeType, data
}
