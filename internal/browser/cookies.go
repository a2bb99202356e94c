package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// Cookie is one entry of an exported cookie jar (the format Chrome devtools and puppeteer write).
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadCookies reads a cookie jar file and converts it to CDP cookie parameters.
func LoadCookies(path string) ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookies %s: %w", path, err)
	}

	params := make([]*proto.NetworkCookieParam, 0, len(cookies))

	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}

		// Session cookies are exported with expires -1.
		if c.Expires > 0 {
			param.Expires = proto.TimeSinceEpoch(c.Expires)
		}

		switch strings.ToLower(c.SameSite) {
		case "strict":
			param.SameSite = proto.NetworkCookieSameSiteStrict
		case "lax":
			param.SameSite = proto.NetworkCookieSameSiteLax
		case "none", "no_restriction":
			param.SameSite = proto.NetworkCookieSameSiteNone
		}

		params = append(params, param)
	}

	return params, nil
}
