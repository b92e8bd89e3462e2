package model

import (
	"errors"
	"net/url"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://ex.com/a/b/page.html")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		raw     string
		base    *url.URL
		want    NormalizedURL
		wantErr error
	}{
		{
			name: "absolute URL keeps path and query",
			raw:  "https://ex.com/x?y=1",
			want: "https://ex.com/x?y=1",
		},
		{
			name: "fragment is removed",
			raw:  "https://ex.com/x#section",
			want: "https://ex.com/x",
		},
		{
			name: "scheme and host are lower-cased",
			raw:  "HTTPS://EX.com/Path",
			want: "https://ex.com/Path",
		},
		{
			name: "empty path becomes slash",
			raw:  "https://ex.com",
			want: "https://ex.com/",
		},
		{
			name: "parent reference resolves against base",
			raw:  "../x",
			base: base,
			want: "https://ex.com/a/x",
		},
		{
			name: "root-relative reference resolves against base",
			raw:  "/style.css",
			base: base,
			want: "https://ex.com/style.css",
		},
		{
			name: "surrounding whitespace is trimmed",
			raw:  "  /a  ",
			base: base,
			want: "https://ex.com/a",
		},
		{
			name:    "relative reference without base is rejected",
			raw:     "/a",
			wantErr: ErrNotAbsolute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, _, err := NormalizeURL(tt.raw, tt.base)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestIsIgnoredReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want bool
	}{
		{raw: "", want: true},
		{raw: "   ", want: true},
		{raw: "#", want: true},
		{raw: "#top", want: true},
		{raw: "mailto:a@b", want: true},
		{raw: "MAILTO:a@b", want: true},
		{raw: "javascript:void(0)", want: true},
		{raw: "tel:+123", want: true},
		{raw: "xmpp:user@host", want: true},
		{raw: "urn:isbn:123", want: true},
		{raw: "#/route", want: false},
		{raw: "/a", want: false},
		{raw: "https://ex.com/", want: false},
		{raw: "page.html#frag", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			if got := IsIgnoredReference(tt.raw); got != tt.want {
				t.Errorf("IsIgnoredReference(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizedURLHost(t *testing.T) {
	t.Parallel()

	u := NormalizedURL("https://ex.com:8443/a")
	if u.Host() != "ex.com:8443" {
		t.Errorf("expected host ex.com:8443, got %q", u.Host())
	}
	if u.Hostname() != "ex.com" {
		t.Errorf("expected hostname ex.com, got %q", u.Hostname())
	}
}

func TestFetchResultLocation(t *testing.T) {
	t.Parallel()

	t.Run("redirect with location", func(t *testing.T) {
		t.Parallel()
		r := &FetchResult{StatusCode: 301, Headers: map[string][]string{"Location": {" /next "}}}
		if got := r.Location(); got != "/next" {
			t.Errorf("expected /next, got %q", got)
		}
	})

	t.Run("success ignores location header", func(t *testing.T) {
		t.Parallel()
		r := &FetchResult{StatusCode: 200, Headers: map[string][]string{"Location": {"/next"}}}
		if got := r.Location(); got != "" {
			t.Errorf("expected empty location, got %q", got)
		}
	})
}

func TestFetchResultIsHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        bool
	}{
		{contentType: "text/html", want: true},
		{contentType: "text/html; charset=utf-8", want: true},
		{contentType: "TEXT/HTML", want: true},
		{contentType: "application/xhtml+xml", want: true},
		{contentType: "text/css", want: false},
		{contentType: "", want: false},
		{contentType: ";;;", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			t.Parallel()
			r := &FetchResult{ContentType: tt.contentType}
			if got := r.IsHTML(); got != tt.want {
				t.Errorf("IsHTML(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestPathDecisionPath(t *testing.T) {
	t.Parallel()

	d := PathDecision{Dirs: []string{"a", "b"}, Filename: "index.html"}
	if got := d.Path("root"); got != "root/a/b/index.html" && got != `root\a\b\index.html` {
		t.Errorf("unexpected path %q", got)
	}

	empty := PathDecision{Filename: "index.html"}
	if got := empty.Path("root"); got != "root/index.html" && got != `root\index.html` {
		t.Errorf("unexpected path %q", got)
	}
}
