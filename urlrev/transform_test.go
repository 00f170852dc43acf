package urlrev_test

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"urlrev/urlrev"
)

type testDecl struct {
	value  string
	source string
}

func (d *testDecl) Value() string      { return d.value }
func (d *testDecl) SetValue(v string)  { d.value = v }
func (d *testDecl) SourceFile() string { return d.source }

type warning struct {
	decl urlrev.Declaration
	text string
}

type collector struct {
	mu       sync.Mutex
	warnings []warning
}

func (c *collector) Warn(decl urlrev.Declaration, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, warning{decl: decl, text: text})
}

func md5hex(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}

// writeFile creates file under dir and returns its content.
func writeFile(t *testing.T, dir, name, content string) []byte {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return []byte(content)
}

func newRevisioner(t *testing.T, opts ...urlrev.Option) *urlrev.Revisioner {
	t.Helper()
	r, err := urlrev.New(append([]urlrev.Option{urlrev.WithLogger(zaptest.NewLogger(t))}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

// run processes single declaration which source file is dir/style.css.
func run(t *testing.T, r *urlrev.Revisioner, dir, value string) (*testDecl, *collector, urlrev.Summary) {
	t.Helper()
	d := &testDecl{value: value, source: filepath.Join(dir, "style.css")}
	c := &collector{}
	sum := r.Transform(context.Background(), []urlrev.Declaration{d}, c, "")
	return d, c, sum
}

func TestTransform_LocalFile(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "images/test.png", "png bytes")

	d, c, sum := run(t, newRevisioner(t), dir, "url(images/test.png)")

	want := "url(images/test.png?v=" + md5hex(data)[:10] + ")"
	if d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if len(c.warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", c.warnings)
	}
	if sum.Declarations != 1 || sum.Rewritten != 1 || sum.References != 1 || sum.Failed != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestTransform_KnownDigest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "images/test.png", "irrelevant")

	known := urlrev.HasherFunc(func(context.Context, string, string) (string, error) {
		return "e19ac7dee652fdbcbaa7cf7f3b998fa1", nil
	})
	d, _, _ := run(t, newRevisioner(t, urlrev.WithHasher(known)), dir, "url(images/test.png)")
	if want := "url(images/test.png?v=e19ac7dee6)"; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
}

func TestTransform_KnownContentDigest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "images/test.png", "hello")

	d, _, _ := run(t, newRevisioner(t), dir, "url(images/test.png)")
	if want := "url(images/test.png?v=5d41402abc)"; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}

	d, _, _ = run(t, newRevisioner(t, urlrev.WithAlgorithm("sha256"), urlrev.WithHashLength(8)), dir, "url(images/test.png)")
	if want := "url(images/test.png?v=2cf24dba)"; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
}

func TestTransform_InvalidEscape(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a%zz.png", "escaped")

	d, c, sum := run(t, newRevisioner(t), dir, "url(a%zz.png)")
	if want := "url(a%zz.png?v=" + md5hex(data)[:10] + ")"; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if len(c.warnings) != 0 || sum.Failed != 0 {
		t.Errorf("unexpected warnings: %+v", c.warnings)
	}
}

func TestTransform_KindMismatch(t *testing.T) {
	dir := t.TempDir()
	png := writeFile(t, dir, "photo.jpg", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	writeFile(t, dir, "logo.png", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	core, logs := observer.New(zapcore.WarnLevel)
	r := newRevisioner(t, urlrev.WithLogger(zap.New(core)))

	d, c, _ := run(t, r, dir, "url(photo.jpg), url(logo.png)")
	want := "url(photo.jpg?v=" + md5hex(png)[:10] + "), url(logo.png?v=" + md5hex(png)[:10] + ")"
	if d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if len(c.warnings) != 0 {
		t.Errorf("mismatch must not void declaration: %+v", c.warnings)
	}

	entries := logs.FilterMessage("Resource content does not match its extension").All()
	if len(entries) != 1 {
		t.Fatalf("expected single mismatch entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["extension"] != ".jpg" || fields["detected"] != "image/png" {
		t.Errorf("unexpected mismatch fields %v", fields)
	}
}

func TestTransform_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.png", "same")
	writeFile(t, dir, "b.png", "same")

	r := newRevisioner(t)
	first, _, _ := run(t, r, dir, "url(a.png)")
	second, _, _ := run(t, r, dir, "url(a.png)")
	other, _, _ := run(t, r, dir, "url(b.png)")

	if first.value != second.value {
		t.Errorf("digest changed between passes: %q != %q", first.value, second.value)
	}
	if strings.TrimPrefix(first.value, "url(a.png") != strings.TrimPrefix(other.value, "url(b.png") {
		t.Errorf("identical content produced different tokens: %q, %q", first.value, other.value)
	}
}

func TestTransform_HashLength(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a.png", "content")
	sum := md5hex(data)

	tests := []struct {
		length int
		want   string
	}{
		{-1, "url(a.png?v=)"},
		{0, "url(a.png?v=)"},
		{22, "url(a.png?v=" + sum[:22] + ")"},
		{100, "url(a.png?v=" + sum + ")"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.length), func(t *testing.T) {
			d, _, _ := run(t, newRevisioner(t, urlrev.WithHashLength(tt.length)), dir, "url(a.png)")
			if d.value != tt.want {
				t.Errorf("value = %q, want %q", d.value, tt.want)
			}
		})
	}
}

func TestTransform_SkippedReferences(t *testing.T) {
	dir := t.TempDir()
	values := []string{
		"url(data:image/png;base64,iVBORw0KGgo=)",
		"url('#icon')",
		"url(/img/a.png)",
		"url(http://example.com/a.png)",
		"url(//cdn.example.com/a.png)",
		"none",
	}
	for _, v := range values {
		d, c, _ := run(t, newRevisioner(t), dir, v)
		if d.value != v {
			t.Errorf("value %q changed to %q", v, d.value)
		}
		if len(c.warnings) != 0 {
			t.Errorf("unexpected warnings for %q: %+v", v, c.warnings)
		}
	}
}

func TestTransform_SiteAbsolute(t *testing.T) {
	root := t.TempDir()
	data := writeFile(t, root, "img/a.png", "absolute")
	cssDir := filepath.Join(root, "css")

	d, c, _ := run(t, newRevisioner(t, urlrev.WithAbsolutePath(root)), cssDir, "url(/img/a.png)")
	if want := "url(/img/a.png?v=" + md5hex(data)[:10] + ")"; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if len(c.warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", c.warnings)
	}
}

func TestTransform_Remote(t *testing.T) {
	payload := []byte("remote image payload")
	var gotAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a.png" {
			http.NotFound(w, r)
			return
		}
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer ts.Close()

	dir := t.TempDir()
	hash := md5hex(payload)[:10]

	t.Run("disabled", func(t *testing.T) {
		value := "url(" + ts.URL + "/a.png)"
		d, c, _ := run(t, newRevisioner(t, urlrev.WithHTTPClient(ts.Client())), dir, value)
		if d.value != value || len(c.warnings) != 0 {
			t.Errorf("remote reference processed while disabled: %q, %+v", d.value, c.warnings)
		}
	})

	r := newRevisioner(t,
		urlrev.WithIncludeRemote(true),
		urlrev.WithHTTPClient(ts.Client()),
		urlrev.WithHeaders(http.Header{"User-Agent": []string{"urlrev-test"}}))

	t.Run("absolute", func(t *testing.T) {
		d, c, _ := run(t, r, dir, "url('"+ts.URL+"/a.png')")
		if want := "url('" + ts.URL + "/a.png?v=" + hash + "')"; d.value != want {
			t.Errorf("value = %q, want %q", d.value, want)
		}
		if len(c.warnings) != 0 {
			t.Errorf("unexpected warnings: %+v", c.warnings)
		}
		if gotAgent != "urlrev-test" {
			t.Errorf("User-Agent = %q, want urlrev-test", gotAgent)
		}
	})

	t.Run("protocol relative", func(t *testing.T) {
		ref := strings.TrimPrefix(ts.URL, "http:") + "/a.png"
		d, c, _ := run(t, r, dir, "url("+ref+")")
		if want := "url(" + ref + "?v=" + hash + ")"; d.value != want {
			t.Errorf("value = %q, want %q", d.value, want)
		}
		if len(c.warnings) != 0 {
			t.Errorf("unexpected warnings: %+v", c.warnings)
		}
	})

	t.Run("not found", func(t *testing.T) {
		value := "url(" + ts.URL + "/missing.png)"
		d, c, sum := run(t, r, dir, value)
		if d.value != value {
			t.Errorf("value changed to %q", d.value)
		}
		if len(c.warnings) != 1 || !strings.Contains(c.warnings[0].text, "unexpected response status") {
			t.Errorf("expected single status warning, got %+v", c.warnings)
		}
		if sum.Failed != 1 {
			t.Errorf("Failed = %d, want 1", sum.Failed)
		}
	})
}

func TestTransform_RemoteConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	value := "url(" + addr + "/a.png)"
	d, c, _ := run(t, newRevisioner(t, urlrev.WithIncludeRemote(true)), t.TempDir(), value)
	if d.value != value {
		t.Errorf("value changed to %q", d.value)
	}
	if len(c.warnings) != 1 || !strings.Contains(c.warnings[0].text, "unable to fetch remote resource") {
		t.Errorf("expected single fetch warning, got %+v", c.warnings)
	}
}

func TestTransform_CustomReplacer(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a.png", "custom")

	replacer := urlrev.ReplacerFunc(func(u, h string) (string, error) {
		return u + "?" + h, nil
	})
	d, _, _ := run(t, newRevisioner(t, urlrev.WithReplacer(replacer)), dir, "url(a.png)")
	if want := "url(a.png?" + md5hex(data) + ")"; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
}

func TestTransform_TemplateReplacer(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "img/logo.png", "logo")

	rp, err := urlrev.NewTemplateReplacer(`{{ .Dir }}/{{ trimSuffix .Ext .Base }}.{{ .Hash }}{{ .Ext }}`, 8)
	if err != nil {
		t.Fatalf("NewTemplateReplacer() error = %v", err)
	}
	d, c, _ := run(t, newRevisioner(t, urlrev.WithReplacer(rp)), dir, `url("img/logo.png")`)
	if want := `url("img/logo.` + md5hex(data)[:8] + `.png")`; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if len(c.warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", c.warnings)
	}
}

func TestTransform_CustomHasher(t *testing.T) {
	dir := t.TempDir()

	var gotPath, gotBase string
	hasher := urlrev.HasherFunc(func(_ context.Context, path, base string) (string, error) {
		gotPath, gotBase = path, base
		return "abcdef0123456789", nil
	})
	d, c, _ := run(t, newRevisioner(t, urlrev.WithHasher(hasher)), dir, "url(img/a.png?x=1)")
	if want := "url(img/a.png?x=1&v=abcdef0123)"; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if len(c.warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", c.warnings)
	}
	if want := filepath.Join(dir, "img", "a.png"); gotPath != want {
		t.Errorf("hasher path = %q, want %q", gotPath, want)
	}
	if gotBase != "a.png" {
		t.Errorf("hasher base = %q, want a.png", gotBase)
	}
}

func TestTransform_CustomHasherFailure(t *testing.T) {
	tests := []struct {
		name   string
		hasher urlrev.HasherFunc
	}{
		{"error", func(context.Context, string, string) (string, error) { return "", errors.New("boom") }},
		{"panic", func(context.Context, string, string) (string, error) { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c, _ := run(t, newRevisioner(t, urlrev.WithHasher(tt.hasher)), t.TempDir(), "url(a.png)")
			if d.value != "url(a.png)" {
				t.Errorf("value changed to %q", d.value)
			}
			if len(c.warnings) != 1 || !strings.Contains(c.warnings[0].text, "boom") {
				t.Errorf("expected single warning mentioning failure, got %+v", c.warnings)
			}
		})
	}
}

func TestTransform_MissingFile(t *testing.T) {
	dir := t.TempDir()
	value := "url('images/test.svg')"

	d, c, sum := run(t, newRevisioner(t), dir, value)
	if d.value != value {
		t.Errorf("value changed to %q", d.value)
	}
	if len(c.warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(c.warnings))
	}
	if c.warnings[0].decl != urlrev.Declaration(d) {
		t.Error("warning attached to wrong declaration")
	}
	if !strings.Contains(c.warnings[0].text, "test.svg") {
		t.Errorf("warning %q does not mention the file", c.warnings[0].text)
	}
	if sum.Failed != 1 || sum.Rewritten != 0 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestTransform_AllOrNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.png", "exists")
	value := "url(a.png), url(missing.png)"

	d, c, _ := run(t, newRevisioner(t), dir, value)
	if d.value != value {
		t.Errorf("partial rewrite leaked: %q", d.value)
	}
	if len(c.warnings) != 1 {
		t.Errorf("expected 1 warning, got %+v", c.warnings)
	}
}

func TestTransform_MultipleReferences(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.png", "first")
	b := writeFile(t, dir, "b.png", "second")

	value := `url("a.png") no-repeat, #fff url( 'b.png' ) repeat-x`
	d, _, sum := run(t, newRevisioner(t), dir, value)

	want := `url("a.png?v=` + md5hex(a)[:10] + `") no-repeat, #fff url( 'b.png?v=` + md5hex(b)[:10] + `' ) repeat-x`
	if d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if sum.References != 2 {
		t.Errorf("References = %d, want 2", sum.References)
	}
}

func TestTransform_DuplicateReferences(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a.png", "dup")
	tok := "url(a.png?v=" + md5hex(data)[:10] + ")"

	d, _, _ := run(t, newRevisioner(t), dir, "url(a.png), url(a.png)")
	if want := tok + ", " + tok; d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
}

func TestTransform_MixedEligibility(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a.png", "mixed")

	value := "url(data:image/gif;base64,R0lGODlh), url(a.png), url(/abs.png)"
	d, c, _ := run(t, newRevisioner(t), dir, value)
	want := "url(data:image/gif;base64,R0lGODlh), url(a.png?v=" + md5hex(data)[:10] + "), url(/abs.png)"
	if d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}
	if len(c.warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", c.warnings)
	}
}

func TestTransform_SourcePathContext(t *testing.T) {
	root := t.TempDir()
	inCSS := writeFile(t, root, "css/a.png", "next to stylesheet")
	inRoot := writeFile(t, root, "a.png", "next to from")

	r := newRevisioner(t)

	withSource := &testDecl{value: "url(a.png)", source: filepath.Join(root, "css", "main.css")}
	withoutSource := &testDecl{value: "url(a.png)"}
	sum := r.Transform(context.Background(),
		[]urlrev.Declaration{withSource, withoutSource}, nil, filepath.Join(root, "main.css"))

	if want := "url(a.png?v=" + md5hex(inCSS)[:10] + ")"; withSource.value != want {
		t.Errorf("declaration source not preferred: %q, want %q", withSource.value, want)
	}
	if want := "url(a.png?v=" + md5hex(inRoot)[:10] + ")"; withoutSource.value != want {
		t.Errorf("from directory not used as fallback: %q, want %q", withoutSource.value, want)
	}
	if sum.Rewritten != 2 {
		t.Errorf("Rewritten = %d, want 2", sum.Rewritten)
	}
}

func TestTransform_ManyDeclarations(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a.png", "many")
	want := "url(a.png?v=" + md5hex(data)[:10] + ")"

	for _, limit := range []int{0, 1, 3} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			decls := make([]*testDecl, 20)
			for i := range decls {
				decls[i] = &testDecl{value: "url(a.png)", source: filepath.Join(dir, "style.css")}
			}
			decls = append(decls, &testDecl{value: "red"}, &testDecl{value: "url(gone.png)", source: filepath.Join(dir, "style.css")})

			c := &collector{}
			sum := newRevisioner(t, urlrev.WithConcurrency(limit)).Transform(context.Background(), urlrev.Declarations(decls), c, "")

			for i := range 20 {
				if decls[i].value != want {
					t.Errorf("declaration %d = %q, want %q", i, decls[i].value, want)
				}
			}
			if decls[20].value != "red" {
				t.Errorf("unrelated declaration changed: %q", decls[20].value)
			}
			if sum.Declarations != 21 || sum.Rewritten != 20 || sum.Failed != 1 || len(c.warnings) != 1 {
				t.Errorf("unexpected summary %+v, warnings %d", sum, len(c.warnings))
			}
		})
	}
}

func TestTransform_Algorithm(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a.png", "sha")

	d, _, _ := run(t, newRevisioner(t, urlrev.WithAlgorithm("sha256"), urlrev.WithHashLength(100)), dir, "url(a.png)")
	if want := fmt.Sprintf("url(a.png?v=%x)", sha256.Sum256(data)); d.value != want {
		t.Errorf("value = %q, want %q", d.value, want)
	}

	d, _, _ = run(t, newRevisioner(t, urlrev.WithAlgorithm("blake2b"), urlrev.WithHashLength(100)), dir, "url(a.png)")
	if v := strings.TrimSuffix(strings.TrimPrefix(d.value, "url(a.png?v="), ")"); len(v) != 64 {
		t.Errorf("blake2b digest %q has length %d, want 64", v, len(v))
	}
}

func TestNew_InvalidAlgorithm(t *testing.T) {
	if _, err := urlrev.New(urlrev.WithAlgorithm("crc32")); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}

func TestAlgorithms(t *testing.T) {
	names := urlrev.Algorithms()
	if len(names) == 0 || names[0] != "blake2b" {
		t.Errorf("Algorithms() = %v, expected sorted list starting with blake2b", names)
	}
}

func TestTransform_CanceledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	value := "url(" + ts.URL + "/a.png)"
	d := &testDecl{value: value}
	c := &collector{}
	r := newRevisioner(t, urlrev.WithIncludeRemote(true), urlrev.WithHTTPClient(ts.Client()))
	sum := r.Transform(ctx, []urlrev.Declaration{d}, c, "")
	if d.value != value || sum.Failed != 1 || len(c.warnings) != 1 {
		t.Errorf("canceled fetch should fail declaration: value %q, summary %+v", d.value, sum)
	}
}
