package geo

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    Payload
	}{
		{
			name: "full edge metadata",
			headers: map[string]string{
				"CF-IPCountry":      "pt",
				"CF-IPCity":         "Lisbon",
				"CF-Region":         "Lisbon",
				"CF-Timezone":       "Europe/Lisbon",
				"CF-ASN":            "13335",
				"X-AS-Organization": "Cloudflare",
				"CF-Ray":            "8c5f1a2b3c4d5e6f-LIS",
			},
			want: Payload{
				IP:       "1.2.3.4",
				City:     "Lisbon",
				Region:   "Lisbon",
				Country:  "PT",
				Org:      "AS13335 Cloudflare",
				Timezone: "Europe/Lisbon",
				Colo:     "LIS",
			},
		},
		{
			name:    "no metadata",
			headers: nil,
			want:    Payload{IP: "1.2.3.4"},
		},
		{
			name: "percent-encoded city",
			headers: map[string]string{
				"CF-IPCity": "S%C3%A3o%20Paulo",
			},
			want: Payload{IP: "1.2.3.4", City: "São Paulo"},
		},
		{
			name: "malformed escape kept verbatim",
			headers: map[string]string{
				"CF-IPCity": "100%zz",
			},
			want: Payload{IP: "1.2.3.4", City: "100%zz"},
		},
		{
			name: "unknown country placeholder",
			headers: map[string]string{
				"CF-IPCountry": "XX",
			},
			want: Payload{IP: "1.2.3.4"},
		},
		{
			name: "alternate asn header with prefix",
			headers: map[string]string{
				"X-ASN": "AS3243",
			},
			want: Payload{IP: "1.2.3.4", Org: "AS3243"},
		},
		{
			name: "organisation only",
			headers: map[string]string{
				"X-AS-Organization": "MEO",
			},
			want: Payload{IP: "1.2.3.4", Org: "MEO"},
		},
		{
			name: "ray without colo",
			headers: map[string]string{
				"CF-Ray": "8c5f1a2b3c4d5e6f",
			},
			want: Payload{IP: "1.2.3.4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := FromRequest(r, "1.2.3.4"); got != tt.want {
				t.Errorf("FromRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPayload_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Payload{IP: "1.2.3.4", Country: "PT"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"ip":"1.2.3.4","country":"PT"}` {
		t.Errorf("json = %s", data)
	}
}
