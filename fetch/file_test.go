package fetch

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/lukemcguire/linkcrawl/result"
)

func fileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFileFetcher_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.html"), `<html><a href="other.html">o</a><a href="missing.html">m</a></html>`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "plain text with <a href=\"x\">")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	f := NewFileFetcher(0)

	tests := []struct {
		name        string
		path        string
		recurse     bool
		wantKind    OutcomeKind
		wantType    string
		wantLinks   int
		wantFailure result.FailureKind
	}{
		{"html file recursed", "index.html", true, OutcomeContent, "text/html", 2, ""},
		{"html file checked", "index.html", false, OutcomeContent, "text/html", 0, ""},
		{"text file not scanned", "notes.txt", true, OutcomeContent, "text/plain", 0, ""},
		{"directory recursed", "", true, OutcomeContent, DirectoryType, 3, ""},
		{"directory checked", "sub", false, OutcomeContent, DirectoryType, 0, ""},
		{"missing file", "nope.html", false, OutcomeFailure, "", 0, result.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Fetch(context.Background(), Request{URL: fileURL(filepath.Join(dir, tt.path)), Recurse: tt.recurse})
			if got.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v (err: %v)", got.Kind, tt.wantKind, got.Err)
			}
			if got.ContentType != tt.wantType {
				t.Errorf("ContentType = %q, want %q", got.ContentType, tt.wantType)
			}
			if len(got.Links) != tt.wantLinks {
				t.Errorf("got %d links, want %d: %+v", len(got.Links), tt.wantLinks, got.Links)
			}
			if got.Failure != tt.wantFailure {
				t.Errorf("Failure = %q, want %q", got.Failure, tt.wantFailure)
			}
		})
	}
}

func TestFileFetcher_DirectoryLinks(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a b.html"), "")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := NewFileFetcher(0).Fetch(context.Background(), Request{URL: fileURL(dir), Recurse: true})
	if len(got.Links) != 2 {
		t.Fatalf("got %d links, want 2", len(got.Links))
	}

	wantBase := fileURL(dir) + "/"
	want := map[string]bool{"a%20b.html": true, "sub/": true}
	for _, link := range got.Links {
		if !want[link.URL] {
			t.Errorf("unexpected link %q", link.URL)
		}
		if link.Base != wantBase {
			t.Errorf("Base = %q, want %q", link.Base, wantBase)
		}
	}
}

func TestFileFetcher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := NewFileFetcher(0).Fetch(ctx, Request{URL: fileURL(t.TempDir())})
	if got.Failure != result.KindCancelled {
		t.Errorf("Failure = %q, want %q", got.Failure, result.KindCancelled)
	}
}

func TestFileFetcher_RemoteHost(t *testing.T) {
	got := NewFileFetcher(0).Fetch(context.Background(), Request{URL: "file://server/share/doc.html"})
	if got.Failure != result.KindUnsupportedScheme {
		t.Errorf("Failure = %q, want %q", got.Failure, result.KindUnsupportedScheme)
	}
}
