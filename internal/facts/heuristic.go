package facts

import (
	"regexp"
	"strings"
	"unicode"
)

// HeuristicExtractor derives facts from a user message with fixed string
// and regexp triggers. It is deterministic and performs no I/O.
type HeuristicExtractor struct{}

// NewHeuristicExtractor returns the trigger-based extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

var (
	teamSizeRe = regexp.MustCompile(`(?i)(\d{2,5})\s*(чел|человек)`)
	officesRe  = regexp.MustCompile(`(?i)(\d{1,2})\s*офис`)
	slaRe      = regexp.MustCompile(`(?i)sla\s*([0-9]{2}\.?[0-9]?)\s*%`)
	localeEnRe = regexp.MustCompile(`(?i)\ben\b`)
	localeRuRe = regexp.MustCompile(`(?i)\bru\b`)
)

// keyCategories maps well-known fact keys to their category.
var keyCategories = map[string]string{
	"user_name": CategoryIdentity, "company": CategoryIdentity,
	"role": CategoryIdentity, "contact": CategoryIdentity,
	"name": CategoryProject, "description": CategoryProject, "scope": CategoryProject,
	"features": CategoryRequirements, "integrations": CategoryRequirements,
	"platforms": CategoryRequirements, "sso": CategoryRequirements,
	"compliance": CategoryRequirements, "access_roles": CategoryRequirements,
	"reports": CategoryRequirements,
	"budget":  CategoryConstraints, "timeline": CategoryConstraints,
	"team_size": CategoryConstraints, "resources": CategoryConstraints,
	"offices":  CategoryConstraints,
	"language": CategoryPreferences, "timezone": CategoryPreferences,
	"locale": CategoryPreferences, "locales": CategoryPreferences,
	"stack": CategoryTechnical, "architecture": CategoryTechnical, "api": CategoryTechnical,
	"sla": CategoryBusiness, "audit": CategoryBusiness,
	"security": CategoryBusiness, "mvp_timeline": CategoryBusiness,
	"deadlines": CategoryTimeline, "milestones": CategoryTimeline,
}

// CategoryForKey returns the catalogue category for a fact key, or
// CategoryOther for unknown keys.
func CategoryForKey(key string) string {
	if c, ok := keyCategories[key]; ok {
		return c
	}
	return CategoryOther
}

// Extract returns the facts triggered by a single user message, in
// trigger order.
func (h *HeuristicExtractor) Extract(userMessage string) []Fact {
	msg := strings.TrimSpace(userMessage)
	if msg == "" {
		return nil
	}
	lower := strings.ToLower(msg)

	var updates []Fact
	add := func(key, value string) {
		if value == "" {
			return
		}
		for i := range updates {
			if updates[i].Key == key {
				updates[i].Value = value
				return
			}
		}
		updates = append(updates, Fact{Category: CategoryForKey(key), Key: key, Value: value})
	}

	if name := nameAfterMarker(msg, lower, "меня зовут"); name != "" {
		add("user_name", name)
	}
	if name := nameAfterMarker(msg, lower, "my name is"); name != "" {
		add("user_name", name)
	}

	if strings.Contains(lower, "нужен") || strings.Contains(lower, "нужна") || strings.Contains(lower, "нужно") {
		add("goal", msg)
	}

	if strings.Contains(lower, "команда") || strings.Contains(lower, "человек") {
		if m := teamSizeRe.FindStringSubmatch(msg); m != nil {
			add("team_size", m[1])
		}
		if m := officesRe.FindStringSubmatch(msg); m != nil {
			add("offices", m[1])
		}
	}

	if strings.Contains(lower, "sso") {
		add("sso", "required")
	}

	if strings.Contains(lower, "google calendar") || strings.Contains(lower, "outlook") || strings.Contains(lower, "calendar") {
		var integrations []string
		if strings.Contains(lower, "google calendar") {
			integrations = append(integrations, "Google Calendar")
		}
		if strings.Contains(lower, "outlook") {
			integrations = append(integrations, "Outlook")
		}
		if len(integrations) > 0 {
			add("integrations", strings.Join(integrations, ", "))
		}
	}

	if strings.Contains(lower, "доступ") || strings.Contains(lower, "рол") {
		add("access_roles", msg)
	}

	if strings.Contains(lower, "sla") {
		if m := slaRe.FindStringSubmatch(msg); m != nil {
			add("sla", m[1]+"%")
		} else {
			add("sla", msg)
		}
	}

	if strings.Contains(lower, "аудит") {
		add("audit", "required")
	}

	if strings.Contains(lower, "бюджет") || strings.Contains(lower, "$/мес") || strings.Contains(lower, "usd") {
		add("budget", msg)
	}

	if strings.Contains(lower, "мобиль") || strings.Contains(lower, "веб") || strings.Contains(lower, "web") {
		var platforms []string
		if strings.Contains(lower, "мобиль") {
			platforms = append(platforms, "mobile")
		}
		if strings.Contains(lower, "веб") || strings.Contains(lower, "web") {
			platforms = append(platforms, "web")
		}
		if len(platforms) > 0 {
			add("platforms", strings.Join(platforms, ", "))
		}
	}

	if strings.Contains(lower, "локализац") || strings.Contains(lower, "en") || strings.Contains(lower, "ru") {
		var locales []string
		if localeEnRe.MatchString(msg) {
			locales = append(locales, "EN")
		}
		if localeRuRe.MatchString(msg) {
			locales = append(locales, "RU")
		}
		if len(locales) > 0 {
			add("locales", strings.Join(locales, ", "))
		}
	}

	if strings.Contains(lower, "mvp") || strings.Contains(lower, "срок") {
		add("mvp_timeline", msg)
	}

	if strings.Contains(lower, "персональ") || (strings.Contains(lower, "30") && strings.Contains(lower, "дн")) {
		add("data_retention", msg)
	}

	if strings.Contains(lower, "отч") || strings.Contains(lower, "загрузк") || strings.Contains(lower, "репорт") {
		add("reports", msg)
	}

	return updates
}

// Apply extracts facts from a message and merges them into groups.
// It returns the number of facts written.
func (h *HeuristicExtractor) Apply(userMessage string, groups *Groups) int {
	updates := h.Extract(userMessage)
	groups.PutAll(updates)
	return len(updates)
}

// nameAfterMarker pulls up to three word tokens following a name marker.
func nameAfterMarker(msg, lower, marker string) string {
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return ""
	}
	raw := strings.TrimSpace(msg[min(idx+len(marker), len(msg)):])
	cleaned := strings.Trim(raw, ` .,!?:;"«»()`)

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		tok = strings.Trim(tok, "-—–")
		tok = strings.Trim(tok, ` .,!?:;"«»`)
		if tok == "" || !hasLetter(tok) {
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) == 3 {
			break
		}
	}
	return strings.Join(tokens, " ")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
