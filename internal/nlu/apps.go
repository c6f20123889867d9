package nlu

import (
	"net/url"
	"strings"
)

const (
	WidgetCalculator = "calculator"
	WidgetNotepad    = "notepad"
	WidgetFileReader = "filereader"
)

const (
	searchURL    = "https://www.google.com/search?q="
	tweetURL     = "https://x.com/intent/tweet?text="
	mailURL      = "https://mail.google.com"
	videoURL     = "https://www.youtube.com/results?search_query="
	translateURL = "https://translate.google.com/?sl=auto&tl=%s&text=%s"
	spotifyURL   = "https://open.spotify.com"
)

// appURLs maps an app key (spaces removed) to the site it opens.
var appURLs = map[string]string{
	"youtube":  "https://www.youtube.com",
	"spotify":  spotifyURL,
	"whatsapp": "https://web.whatsapp.com",
	"google":   "https://www.google.com",
	"netflix":  "https://www.netflix.com",
	"gmail":    mailURL,
	"twitter":  "https://x.com",
	"facebook": "https://www.facebook.com",
}

// appWidgets are apps rendered in place instead of navigated to.
var appWidgets = map[string]string{
	WidgetCalculator: "Opening calculator...",
	WidgetNotepad:    "Opening notepad...",
	WidgetFileReader: "Opening file reader...",
}

// guessURL treats an unknown app key as a .com domain. It is not validated.
func guessURL(app string) string {
	return "https://www." + app + ".com"
}

// escape percent-encodes s for a query value, spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func appKey(s string) string {
	return strings.Join(strings.Fields(s), "")
}
