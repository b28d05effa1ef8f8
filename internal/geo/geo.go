// Package geo turns the metadata an edge proxy attaches to a request into the
// response payload.
package geo

import (
	"net/http"
	"net/url"
	"strings"
)

// Edge request headers carrying network metadata.
const (
	HeaderCountry  = "CF-IPCountry"
	HeaderCity     = "CF-IPCity"
	HeaderRegion   = "CF-Region"
	HeaderTimezone = "CF-Timezone"
	HeaderASN      = "CF-ASN"
	HeaderASNAlt   = "X-ASN"
	HeaderASOrg    = "X-AS-Organization"
	HeaderRay      = "CF-Ray"
)

// Payload is the body returned to an admitted caller. Empty fields are omitted.
type Payload struct {
	IP       string `json:"ip"`
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Country  string `json:"country,omitempty"`
	Org      string `json:"org,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	Colo     string `json:"colo,omitempty"`
}

// FromRequest builds the payload for ip from r's edge headers.
func FromRequest(r *http.Request, ip string) Payload {
	h := r.Header
	return Payload{
		IP:       ip,
		City:     header(h, HeaderCity),
		Region:   header(h, HeaderRegion),
		Country:  country(header(h, HeaderCountry)),
		Org:      org(firstOf(h, HeaderASN, HeaderASNAlt), header(h, HeaderASOrg)),
		Timezone: header(h, HeaderTimezone),
		Colo:     colo(h.Get(HeaderRay)),
	}
}

// header returns the trimmed, percent-decoded value of name. Edges encode
// non-ASCII city names; a value that fails to decode is returned as sent.
func header(h http.Header, name string) string {
	v := strings.TrimSpace(h.Get(name))
	if v == "" || !strings.Contains(v, "%") {
		return v
	}
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}

func firstOf(h http.Header, names ...string) string {
	for _, n := range names {
		if v := header(h, n); v != "" {
			return v
		}
	}
	return ""
}

// country drops the "XX" placeholder edges send when the location is unknown.
func country(v string) string {
	v = strings.ToUpper(v)
	if v == "XX" {
		return ""
	}
	return v
}

// org formats the autonomous system as "AS<asn> <organisation>".
func org(asn, name string) string {
	asn = strings.TrimPrefix(strings.ToUpper(asn), "AS")
	switch {
	case asn == "" && name == "":
		return ""
	case asn == "":
		return name
	case name == "":
		return "AS" + asn
	}
	return "AS" + asn + " " + name
}

// colo extracts the data centre code from a ray id such as "8c5f1a2b3c4d-LIS".
func colo(ray string) string {
	i := strings.LastIndexByte(ray, '-')
	if i < 0 || i == len(ray)-1 {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(ray[i+1:]))
}
