package dispatch

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/osteele/liquid"
)

// Renderer personalises campaign templates with Liquid. Parsed templates are cached by
// their source text.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewRenderer creates a Renderer with the outreach filters registered.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})
	// {{ company | possessive }} -> "Acme's"
	engine.RegisterFilter("possessive", func(s string) string {
		if s == "" {
			return s
		}
		if strings.HasSuffix(strings.ToLower(s), "s") {
			return s + "'"
		}
		return s + "'s"
	})

	return &Renderer{engine: engine}
}

// Vars returns the personalisation variables for a recipient. name and first_name are
// both the first given name.
func Vars(r db.Recipient) map[string]interface{} {
	first := ""
	if fields := strings.Fields(r.FullName); len(fields) > 0 {
		first = fields[0]
	}
	return map[string]interface{}{
		"name":       first,
		"first_name": first,
		"full_name":  r.FullName,
		"role":       r.Role,
		"company":    r.CompanyName,
		"domain":     recipientDomain(r),
		"email":      r.Address,
	}
}

// Render renders one template source with vars.
func (rd *Renderer) Render(source string, vars map[string]interface{}) (string, error) {
	var tpl *liquid.Template
	if cached, ok := rd.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := rd.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("failed to parse template: %w", err)
		}
		rd.cache.Store(source, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return out, nil
}

// Validate parses a template source without rendering it.
func (rd *Renderer) Validate(source string) error {
	if _, err := rd.engine.ParseString(source); err != nil {
		return fmt.Errorf("invalid template: %w", err)
	}
	return nil
}

// RenderCampaign renders a campaign's subject and body for one recipient.
func (rd *Renderer) RenderCampaign(c *db.Campaign, r db.Recipient) (subject, body string, err error) {
	vars := Vars(r)
	if subject, err = rd.Render(c.SubjectTemplate, vars); err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}
	if body, err = rd.Render(c.BodyTemplate, vars); err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}
	return strings.TrimSpace(subject), body, nil
}
