package cdpsession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/use-agent/gatherer/gatherer"
)

const page = `<!doctype html>
<html><head><style>
  body { margin: 0; }
  .hide { display: none !important; }
  header { height: 40px; }
  footer { height: 30px; }
  .row { height: 250px; }
</style></head>
<body>
  <header id="site" class="site">header</header>
  <div class="row"></div><div class="row"></div>
  <footer id="foot">footer</footer>
</body></html>`

func newSession(t *testing.T) (*Session, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	bin, has := launcher.LookPath()
	if !has {
		t.Skip("no browser available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	t.Cleanup(srv.Close)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(bin),
		chromedp.NoSandbox,
		chromedp.WindowSize(320, 240),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	t.Cleanup(cancelAlloc)
	tab, cancelTab := chromedp.NewContext(allocCtx)
	t.Cleanup(cancelTab)

	if err := chromedp.Run(tab,
		chromedp.EmulateViewport(320, 240),
		chromedp.Navigate(srv.URL),
	); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	return New(tab), srv.URL
}

func TestSession(t *testing.T) {
	s, url := newSession(t)
	ctx := context.Background()

	if loc, err := s.CurrentURL(ctx); err != nil || loc != url+"/" {
		t.Errorf("CurrentURL = %q, %v", loc, err)
	}
	if size, err := s.ViewportSize(ctx); err != nil || size != (gatherer.Size{Width: 320, Height: 240}) {
		t.Errorf("ViewportSize = %+v, %v", size, err)
	}
	if h, err := s.PageHeight(ctx); err != nil || h != 570 {
		t.Errorf("PageHeight = %d, %v; want 570", h, err)
	}
	if html, err := s.HTML(ctx); err != nil || !strings.Contains(html, `id="foot"`) {
		t.Errorf("HTML = %.40q, %v", html, err)
	}

	if _, err := s.FindElement(ctx, "nav"); !errors.Is(err, gatherer.ErrNoSuchElement) {
		t.Errorf("FindElement(nav) error = %v, want ErrNoSuchElement", err)
	}
	header, err := s.FindElement(ctx, `header[id="site"]`)
	if err != nil {
		t.Fatalf("FindElement(header): %v", err)
	}
	if shown, err := header.Displayed(ctx); err != nil || !shown {
		t.Errorf("Displayed = %v, %v", shown, err)
	}
	if sz, err := header.Size(ctx); err != nil || sz.Height != 40 {
		t.Errorf("Size = %+v, %v", sz, err)
	}
	if err := header.Exec(ctx, `function (cls) { this.className = cls; }`, "site hide"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if shown, _ := header.Displayed(ctx); shown {
		t.Error("header still displayed after adding the hide class")
	}
	if cls, _ := header.Attribute(ctx, "class"); cls != "site hide" {
		t.Errorf("class = %q", cls)
	}
}

func TestGatherer_OnChromedp(t *testing.T) {
	s, url := newSession(t)
	ctx := context.Background()

	if loc := gatherer.Location(ctx, s); !loc.OK() || loc.Value != url+"/" {
		t.Errorf("Location = %+v", loc)
	}

	g := gatherer.New(gatherer.Options{
		Chrome: gatherer.ChromeSelectors{MerchantHeader: "#site", MerchantFooter: "#foot"}.Elements(),
	})
	res := g.FullPage(ctx, s)
	if !res.OK() {
		t.Fatalf("FullPage = %v: %v", res.Status, res.Err)
	}
	if b := res.Value.Image.Bounds(); b.Dx() != 320 || b.Dy() != 500 {
		t.Errorf("full page = %dx%d, want 320x500", b.Dx(), b.Dy())
	}

	header, _ := s.FindElement(ctx, "#site")
	if cls, _ := header.Attribute(ctx, "class"); cls != "site" {
		t.Errorf("class after capture = %q, want restored", cls)
	}
}
