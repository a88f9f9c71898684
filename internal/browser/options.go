package browser

import "strings"

const (
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"
	desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	defaultLocale    = "ko-KR"
)

// Geolocation is an emulated device position.
type Geolocation struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

// Seoul is the default emulated position for Korean news and blog pages.
var Seoul = Geolocation{Latitude: 37.5665, Longitude: 126.9780, Accuracy: 100}

// Options describes the isolated context a lease opens.
type Options struct {
	UserAgent string
	Locale    string
	Width     int64
	Height    int64
	Mobile    bool
	// Geolocation grants the geolocation permission and overrides the position when set.
	Geolocation *Geolocation
	BypassCSP   bool
	// BlockResources aborts image, media and font requests.
	BlockResources bool
}

// MobileOptions emulates an iPhone browsing Korean sites.
func MobileOptions() Options {
	geo := Seoul
	return Options{
		UserAgent:      mobileUserAgent,
		Locale:         defaultLocale,
		Width:          375,
		Height:         812,
		Mobile:         true,
		Geolocation:    &geo,
		BypassCSP:      true,
		BlockResources: true,
	}
}

// DesktopOptions emulates a desktop Chrome window.
func DesktopOptions() Options {
	return Options{
		UserAgent:      desktopUserAgent,
		Locale:         defaultLocale,
		Width:          1280,
		Height:         1024,
		BypassCSP:      true,
		BlockResources: true,
	}
}

// AcceptLanguage renders the Accept-Language header for the locale.
func (o Options) AcceptLanguage() string {
	if o.Locale == "" {
		return ""
	}
	lang, _, _ := strings.Cut(o.Locale, "-")
	if lang == o.Locale {
		return o.Locale
	}
	return o.Locale + "," + lang + ";q=0.9"
}
