package protocol

import "strings"

// EncodeInfoRequest frames a newline-terminated list of info keys as a text
// frame (type=1).
func EncodeInfoRequest(keys ...string) []byte {
	var body strings.Builder
	for _, k := range keys {
		body.WriteString(k)
		body.WriteByte('\n')
	}
	return frame(TypeInfo, []byte(body.String()))
}

// ParseInfoResponse splits a decoded info response body into key/value pairs:
// newline-separated records, tab-separated key and value.
func ParseInfoResponse(body []byte) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(string(body), "\n") {
		if line == "" {
			continue
		}
		k, v, found := strings.Cut(line, "\t")
		if !found {
			out[k] = ""
			continue
		}
		out[k] = v
	}
	return out
}
