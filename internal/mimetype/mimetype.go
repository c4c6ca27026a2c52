// Package mimetype turns the content types reported by file pickers into a
// single canonical media type suitable for object storage.
package mimetype

import "strings"

// OctetStream is returned when nothing better can be determined.
const OctetStream = "application/octet-stream"

var byExtension = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"heic": "image/heic",
	"heif": "image/heif",
	"webp": "image/webp",
	"gif":  "image/gif",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"txt":  "text/plain",
}

// Normalize resolves declared against fileName and never returns an empty
// string. A declared type that is empty, a comma separated list, or a
// picker "json" artifact defers to the file extension first.
func Normalize(declared, fileName string) string {
	if declared == "" || strings.Contains(declared, ",") || strings.Contains(declared, "json") {
		if t, ok := FromFileName(fileName); ok {
			return t
		}
	}

	if declared != "" {
		clean := declared
		if i := strings.Index(clean, ","); i >= 0 {
			clean = clean[:i]
		}
		if i := strings.Index(clean, ";"); i >= 0 {
			clean = clean[:i]
		}
		clean = strings.TrimSpace(clean)

		if strings.Contains(clean, "/") && !strings.Contains(clean, "json") {
			return clean
		}
		// Some pickers report a bare extension instead of a media type.
		if t, ok := byExtension[strings.ToLower(clean)]; ok {
			return t
		}
	}

	if t, ok := FromFileName(fileName); ok {
		return t
	}
	return OctetStream
}

// FromFileName looks up the media type for the extension of name. A name
// without a dot is treated as a bare extension.
func FromFileName(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	ext := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i+1:]
	}
	t, ok := byExtension[strings.ToLower(ext)]
	return t, ok
}

// IsPDF reports whether contentType denotes a PDF.
func IsPDF(contentType string) bool {
	return strings.EqualFold(strings.TrimSpace(contentType), "application/pdf")
}
