package document

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// MimeType picks the media type sent to the provider: the stored file type
// when it is a media type, then the path extension, then content sniffing.
func MimeType(fileType, path string, data []byte) string {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	if strings.Contains(ft, "/") {
		return ft
	}
	if ft != "" {
		if t := mime.TypeByExtension("." + strings.TrimPrefix(ft, ".")); t != "" {
			return stripParams(t)
		}
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return stripParams(t)
	}
	return stripParams(http.DetectContentType(data))
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}
