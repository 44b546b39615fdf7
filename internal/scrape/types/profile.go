package types

import (
	"fmt"
	"strings"

	"jobrelay-engine/internal/scrape/util"
)

type Kind string

const (
	KindMarkup     Kind = "markup"
	KindJSONMarkup Kind = "json_markup"
	KindFeed       Kind = "feed"
)

// SiteProfile describes one site declaratively. Everything a plugin needs to
// scrape a site lives here, so adding a site is a config change.
type SiteProfile struct {
	Name    string `yaml:"name"`
	Kind    Kind   `yaml:"kind"`
	Enabled *bool  `yaml:"enabled,omitempty"`

	ListURL string            `yaml:"list_url"`
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Limit   int               `yaml:"limit,omitempty"`

	// json_markup: gjson path of the HTML fragment inside the listing response
	JSONField string `yaml:"json_field,omitempty"`

	Container string             `yaml:"container"`
	Fields    FieldSelectors     `yaml:"fields"`
	LinkAttr  string             `yaml:"link_attr,omitempty"`
	Cleanup   []string           `yaml:"cleanup,omitempty"`
	Replace   []util.Replacement `yaml:"replace,omitempty"`

	DefaultCompany string `yaml:"default_company,omitempty"`
	DefaultImage   string `yaml:"default_image,omitempty"`

	Detail   *DetailRules `yaml:"detail,omitempty"`
	Identity IdentityRule `yaml:"identity"`

	// Prompt selects the summarizer template: english | mixed
	Prompt  string `yaml:"prompt,omitempty"`
	Hashtag string `yaml:"hashtag,omitempty"`
}

type FieldSelectors struct {
	Title       string `yaml:"title"`
	Link        string `yaml:"link"`
	Company     string `yaml:"company,omitempty"`
	Location    string `yaml:"location,omitempty"`
	Date        string `yaml:"date,omitempty"`
	Deadline    string `yaml:"deadline,omitempty"`
	Category    string `yaml:"category,omitempty"`
	Image       string `yaml:"image,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// DetailRules drive the optional detail-page fetch in ProcessJob.
type DetailRules struct {
	Description string   `yaml:"description"`
	Company     string   `yaml:"company,omitempty"`
	Location    string   `yaml:"location,omitempty"`
	Deadline    string   `yaml:"deadline,omitempty"`
	Category    string   `yaml:"category,omitempty"`
	HowToApply  string   `yaml:"how_to_apply,omitempty"`
	Apply       string   `yaml:"apply,omitempty"`
	Image       string   `yaml:"image,omitempty"`
	Cleanup     []string `yaml:"cleanup,omitempty"`

	// ExpiredMarker present or RequireSelector absent means the posting is gone.
	ExpiredMarker   string `yaml:"expired_marker,omitempty"`
	RequireSelector string `yaml:"require_selector,omitempty"`
}

func (p SiteProfile) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

func (p SiteProfile) LinkAttribute() string {
	if strings.TrimSpace(p.LinkAttr) == "" {
		return "href"
	}
	return p.LinkAttr
}

// Validate reports profile problems that would make the plugin useless.
func (p SiteProfile) Validate() []string {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name is required")
	}
	if strings.TrimSpace(p.ListURL) == "" {
		errs = append(errs, fmt.Sprintf("%s: list_url is required", p.Name))
	}
	switch p.Kind {
	case KindFeed:
	case KindMarkup, KindJSONMarkup:
		if p.Container == "" {
			errs = append(errs, fmt.Sprintf("%s: container is required", p.Name))
		}
		if p.Fields.Title == "" || p.Fields.Link == "" {
			errs = append(errs, fmt.Sprintf("%s: fields.title and fields.link are required", p.Name))
		}
		if p.Kind == KindJSONMarkup && p.JSONField == "" {
			errs = append(errs, fmt.Sprintf("%s: json_field is required for json_markup", p.Name))
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown kind %q", p.Name, p.Kind))
	}
	if p.Identity.Pattern != "" {
		if _, err := p.Identity.compile(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: identity.pattern: %v", p.Name, err))
		}
	}
	return errs
}
