package crawler

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/nao1215/sitemirror/internal/model"
)

func mustParseDoc(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("failed to parse html: %v", err)
	}
	return doc
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://ex.com/a/b/page.html")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("extracts every supported element in document order", func(t *testing.T) {
		t.Parallel()

		doc := mustParseDoc(t, `<html><head>
			<base href="/base/">
			<link rel="stylesheet" href="style.css">
			<script src="/js/app.js"></script>
		</head><body>
			<a href="../x">x</a>
			<img src="img/logo.png">
			<map><area href="/area"></map>
		</body></html>`)

		got := ExtractLinks(base, doc)
		want := []string{
			"https://ex.com/base/",
			"https://ex.com/a/b/style.css",
			"https://ex.com/js/app.js",
			"https://ex.com/a/x",
			"https://ex.com/a/b/img/logo.png",
			"https://ex.com/area",
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d links, got %d: %v", len(want), len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("link %d: expected %q, got %q", i, want[i], got[i])
			}
		}
	})

	t.Run("base href does not change the resolution base", func(t *testing.T) {
		t.Parallel()

		doc := mustParseDoc(t, `<head><base href="https://cdn.example/"></head><body><a href="rel">r</a></body>`)
		got := ExtractLinks(base, doc)
		if len(got) != 2 || got[1] != "https://ex.com/a/b/rel" {
			t.Errorf("expected relative link resolved against page URL, got %v", got)
		}
	})

	t.Run("ignored references are dropped", func(t *testing.T) {
		t.Parallel()

		doc := mustParseDoc(t, `<body>
			<a href="mailto:a@b">mail</a>
			<a href="javascript:void(0)">js</a>
			<a href="tel:123">tel</a>
			<a href="#">top</a>
			<a href="#section">section</a>
			<a href="">empty</a>
			<a>no href</a>
			<a href="/kept">kept</a>
		</body>`)

		got := ExtractLinks(base, doc)
		if len(got) != 1 || got[0] != "https://ex.com/kept" {
			t.Errorf("expected only /kept, got %v", got)
		}
	})

	t.Run("duplicates are preserved", func(t *testing.T) {
		t.Parallel()

		doc := mustParseDoc(t, `<body><a href="/a">1</a><a href="/a">2</a></body>`)
		got := ExtractLinks(base, doc)
		if len(got) != 2 {
			t.Errorf("expected 2 links, got %v", got)
		}
	})

	t.Run("unsupported attributes are not followed", func(t *testing.T) {
		t.Parallel()

		doc := mustParseDoc(t, `<body><form action="/post"></form><iframe src="/frame"></iframe><a data-href="/x">x</a></body>`)
		if got := ExtractLinks(base, doc); len(got) != 0 {
			t.Errorf("expected no links, got %v", got)
		}
	})
}

func TestParseDocumentCharset(t *testing.T) {
	t.Parallel()

	// "café" in ISO-8859-1.
	body := []byte("<html><body><a href=\"/caf\xe9\">x</a></body></html>")

	doc, err := ParseDocument(body, "text/html; charset=iso-8859-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	base, _ := url.Parse("https://ex.com/")
	got := ExtractLinks(base, doc)
	if len(got) != 1 {
		t.Fatalf("expected 1 link, got %v", got)
	}
	if got[0] != "https://ex.com/caf%C3%A9" {
		t.Errorf("expected decoded link, got %q", got[0])
	}
}

func TestExtractFromResult(t *testing.T) {
	t.Parallel()

	res := &model.FetchResult{
		FinalURL:    "https://ex.com/dir/",
		ContentType: "text/html",
		Body:        []byte(`<a href="child">c</a>`),
	}
	got, err := ExtractFromResult(res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Links) != 1 || got.Links[0] != "https://ex.com/dir/child" {
		t.Errorf("unexpected links %v", got.Links)
	}
}

func TestExtractReportsDroppedReferences(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://ex.com/")
	doc := mustParseDoc(t, `<body>
		<a href="/a">a</a>
		<a href="mailto:someone@ex.com">mail</a>
		<a href="javascript:void(0)">js</a>
		<a href="#top">top</a>
		<a href="http://[::1">broken</a>
	</body>`)

	got := Extract(base, doc)
	if len(got.Links) != 1 || got.Links[0] != "https://ex.com/a" {
		t.Errorf("unexpected links %v", got.Links)
	}

	want := []model.DroppedReference{
		{Value: "mailto:someone@ex.com", Reason: "ignored"},
		{Value: "javascript:void(0)", Reason: "ignored"},
		{Value: "#top", Reason: "ignored"},
		{Value: "http://[::1", Reason: "invalid"},
	}
	if len(got.Dropped) != len(want) {
		t.Fatalf("expected %d dropped references, got %v", len(want), got.Dropped)
	}
	for i, d := range got.Dropped {
		if d != want[i] {
			t.Errorf("dropped[%d] = %+v, want %+v", i, d, want[i])
		}
	}
}
