package fetch

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

const octetStream = "application/octet-stream"

// DetectContentType determines the media type of a resource: from protocol
// metadata first, then by sniffing the body, then from the file extension.
// The result carries no parameters.
func DetectContentType(header string, body []byte, urlPath string) string {
	if mt := mediaType(header); mt != "" {
		return mt
	}

	if len(body) > 0 {
		if mt := mediaType(http.DetectContentType(body)); mt != "" && mt != octetStream {
			return mt
		}
	}

	if ext := path.Ext(urlPath); ext != "" {
		if mt := mediaType(mime.TypeByExtension(ext)); mt != "" {
			return mt
		}
	}

	if len(body) > 0 {
		return octetStream
	}
	return ""
}

// mediaType strips parameters from a Content-Type value.
func mediaType(contentType string) string {
	if strings.TrimSpace(contentType) == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

// IsHTML reports whether a media type can contain links we extract.
func IsHTML(contentType string) bool {
	switch mediaType(contentType) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// isBinaryContentType reports whether a body of this type is not worth
// downloading for link extraction.
func isBinaryContentType(contentType string) bool {
	mt := mediaType(contentType)
	if mt == "" {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "image/"),
		strings.HasPrefix(mt, "video/"),
		strings.HasPrefix(mt, "audio/"),
		strings.HasPrefix(mt, "font/"):
		return true
	}
	switch mt {
	case "application/pdf",
		"application/zip",
		"application/x-zip-compressed",
		"application/gzip",
		"application/vnd.rar",
		"application/x-7z-compressed",
		octetStream:
		return true
	}
	return false
}
