package sitemap

import (
	"bufio"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"
	xhtmlNS   = "http://www.w3.org/1999/xhtml"
)

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	Xhtml   string   `xml:"xmlns:xhtml,attr"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc        string    `xml:"loc"`
	LastMod    string    `xml:"lastmod,omitempty"`
	ChangeFreq string    `xml:"changefreq,omitempty"`
	Priority   string    `xml:"priority"`
	Links      []xmlLink `xml:"xhtml:link"`
}

type xmlLink struct {
	Rel      string `xml:"rel,attr"`
	Hreflang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}

// WriteXML renders entries as a sitemap 0.9 document with xhtml alternates.
func WriteXML(w io.Writer, entries []Entry) error {
	set := xmlURLSet{Xmlns: sitemapNS, Xhtml: xhtmlNS, URLs: make([]xmlURL, 0, len(entries))}
	for _, e := range entries {
		u := xmlURL{
			Loc:        e.URL,
			ChangeFreq: e.ChangeFrequency,
			Priority:   strconv.FormatFloat(e.Priority, 'f', 1, 64),
		}
		if !e.LastModified.IsZero() {
			u.LastMod = e.LastModified.UTC().Format(time.RFC3339)
		}
		for _, a := range e.Alternates {
			u.Links = append(u.Links, xmlLink{Rel: "alternate", Hreflang: a.Hreflang, Href: a.Href})
		}
		set.URLs = append(set.URLs, u)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteRobots renders robots.txt pointing crawlers at origin's sitemap.
func WriteRobots(w io.Writer, origin string, disallow []string) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("User-agent: *\n")
	bw.WriteString("Allow: /\n")
	for _, d := range disallow {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		bw.WriteString("Disallow: " + d + "\n")
	}
	bw.WriteString("\nSitemap: " + strings.TrimRight(origin, "/") + "/sitemap.xml\n")
	return bw.Flush()
}
