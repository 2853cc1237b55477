package capture

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to protocol resource types. Images and
// stylesheets are accepted for completeness but blocking them ruins the
// screenshot.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// adDomains are ad and tracking hosts whose banners would otherwise end up
// in screenshots.
var adDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"criteo.net":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"moatads.com":           {},
	"pubmatic.com":          {},
	"rubiconproject.com":    {},
	"scorecardresearch.com": {},
	"quantserve.com":        {},
	"hotjar.com":            {},
	"media.net":             {},
	"openx.net":             {},
	"casalemedia.com":       {},
	"serving-sys.com":       {},
	"sharethis.com":         {},
	"addthis.com":           {},
	"consensu.org":          {},
}

// isAdDomain reports whether host or any parent domain is blocklisted.
func isAdDomain(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for host != "" {
		if _, ok := adDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
	return false
}

// blockRequests intercepts the page's requests and fails those of a blocked
// resource type or, with blockAds, to an ad domain. It returns nil when
// there is nothing to block; otherwise the caller must Stop the router.
func blockRequests(page *rod.Page, blockedTypes []string, blockAds bool) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypes[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !blockAds {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if _, drop := blocked[h.Request.Type()]; drop {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if blockAds && isAdDomain(h.Request.URL().Hostname()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// Run blocks until Stop.
	go router.Run()

	return router
}
