package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/lukemcguire/linkcrawl/result"
)

// sniffLen is how much of a file is read to guess its type.
const sniffLen = 512

// DirectoryType is the content type reported for directories.
const DirectoryType = "inode/directory"

// FileFetcher checks file URLs on the local filesystem. A directory is
// treated as a document linking to each of its entries.
type FileFetcher struct {
	MaxBodySize int64 // Bytes read for link extraction; 0 is unlimited
}

// NewFileFetcher creates a FileFetcher.
func NewFileFetcher(maxBodySize int64) *FileFetcher {
	return &FileFetcher{MaxBodySize: maxBodySize}
}

// Supports reports whether scheme is file.
func (f *FileFetcher) Supports(scheme string) bool {
	return scheme == "file"
}

// Fetch stats the file named by req.URL and, when recursing, extracts its links.
func (f *FileFetcher) Fetch(ctx context.Context, req Request) Outcome {
	if err := ctx.Err(); err != nil {
		return Fail(result.KindCancelled, err)
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return Fail(result.KindInvalidURL, fmt.Errorf("parse URL: %w", err))
	}
	if u.Host != "" && u.Host != "localhost" {
		return Fail(result.KindUnsupportedScheme, fmt.Errorf("remote file host %q", u.Host))
	}
	path := u.Path

	info, err := os.Stat(path)
	if err != nil {
		return Fail(result.ClassifyError(err, 0, false), err)
	}

	if info.IsDir() {
		return f.directory(u, req.Recurse)
	}

	file, err := os.Open(path)
	if err != nil {
		return Fail(result.ClassifyError(err, 0, false), err)
	}
	defer file.Close()

	limit := int64(sniffLen)
	if req.Recurse {
		limit = f.MaxBodySize
	}
	var body io.Reader = file
	if limit > 0 {
		body = io.LimitReader(file, limit)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return Fail(result.ClassifyError(err, 0, false), fmt.Errorf("read file: %w", err))
	}

	contentType := DetectContentType("", data, path)
	out := Content(0, contentType, info.Size(), nil)
	if !req.Recurse || !IsHTML(contentType) {
		return out
	}
	if f.MaxBodySize > 0 && info.Size() > f.MaxBodySize {
		out = out.WithWarning(fmt.Sprintf("file truncated to %d bytes", f.MaxBodySize))
	}

	links, err := ExtractLinks(bytes.NewReader(data), contentType, u)
	if err != nil {
		out = out.WithWarning(fmt.Sprintf("extract links: %v", err))
	}
	out.Links = links
	return out
}

// directory lists entries as links relative to the directory. Entries carry
// no position.
func (f *FileFetcher) directory(u *url.URL, recurse bool) Outcome {
	if !recurse {
		return Content(0, DirectoryType, 0, nil)
	}

	entries, err := os.ReadDir(u.Path)
	if err != nil {
		return Fail(result.ClassifyError(err, 0, false), err)
	}

	base := *u
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	base.RawPath = ""

	links := make([]Link, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		links = append(links, Link{
			URL:  (&url.URL{Path: name}).String(),
			Base: base.String(),
		})
	}
	return Content(0, DirectoryType, int64(len(entries)), links)
}
