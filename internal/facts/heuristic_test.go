package facts

import (
	"testing"
)

func findFact(facts []Fact, key string) (Fact, bool) {
	for _, f := range facts {
		if f.Key == key {
			return f, true
		}
	}
	return Fact{}, false
}

func TestHeuristicExtractName(t *testing.T) {
	h := NewHeuristicExtractor()

	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"english", "Hello, my name is John Smith.", "John Smith"},
		{"russian", "Привет, меня зовут Анна Петрова!", "Анна Петрова"},
		{"truncated to three tokens", "my name is Juan Carlos de la Cruz", "Juan Carlos de"},
		{"strips punctuation", `my name is "Kate".`, "Kate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := h.Extract(tt.message)
			f, ok := findFact(facts, "user_name")
			if !ok {
				t.Fatalf("no user_name fact extracted from %q", tt.message)
			}
			if f.Value != tt.want {
				t.Errorf("user_name = %q, want %q", f.Value, tt.want)
			}
			if f.Category != CategoryIdentity {
				t.Errorf("category = %q, want identity", f.Category)
			}
		})
	}
}

func TestHeuristicExtractTriggers(t *testing.T) {
	h := NewHeuristicExtractor()

	tests := []struct {
		name    string
		message string
		key     string
		want    string
	}{
		{"team size", "У нас команда 120 человек", "team_size", "120"},
		{"offices", "команда в 3 офисах по стране", "offices", "3"},
		{"sso", "Нам нужен SSO через Okta", "sso", "required"},
		{"integrations", "Need sync with Google Calendar and Outlook", "integrations", "Google Calendar, Outlook"},
		{"sla percent", "Гарантируйте SLA 99.9 %", "sla", "99.9%"},
		{"audit", "Обязателен аудит действий", "audit", "required"},
		{"platforms", "Нужна мобильная версия и веб", "platforms", "mobile, web"},
		{"locales", "Локализация: EN и RU", "locales", "EN, RU"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := h.Extract(tt.message)
			f, ok := findFact(facts, tt.key)
			if !ok {
				t.Fatalf("no %s fact extracted from %q", tt.key, tt.message)
			}
			if f.Value != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, f.Value, tt.want)
			}
		})
	}
}

func TestHeuristicExtractFullMessageValues(t *testing.T) {
	h := NewHeuristicExtractor()

	msg := "Бюджет до 5000 USD в месяц"
	facts := h.Extract(msg)
	f, ok := findFact(facts, "budget")
	if !ok {
		t.Fatal("no budget fact")
	}
	if f.Value != msg {
		t.Errorf("budget value = %q, want the full message", f.Value)
	}
	if f.Category != CategoryConstraints {
		t.Errorf("category = %q, want constraints", f.Category)
	}
}

func TestHeuristicExtractEmpty(t *testing.T) {
	h := NewHeuristicExtractor()
	if facts := h.Extract("   "); facts != nil {
		t.Errorf("blank message produced %d facts", len(facts))
	}
	if facts := h.Extract("just a plain sentence"); len(facts) != 0 {
		t.Errorf("neutral message produced %d facts", len(facts))
	}
}

func TestHeuristicDeterministic(t *testing.T) {
	h := NewHeuristicExtractor()
	msg := "Меня зовут Анна, нужна CRM, команда 45 человек, SSO и аудит"

	first := h.Extract(msg)
	for i := 0; i < 10; i++ {
		again := h.Extract(msg)
		if len(again) != len(first) {
			t.Fatalf("run %d produced %d facts, first run %d", i, len(again), len(first))
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("run %d fact %d = %+v, first run %+v", i, j, again[j], first[j])
			}
		}
	}
}

func TestCategoryForKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"user_name", CategoryIdentity},
		{"sso", CategoryRequirements},
		{"team_size", CategoryConstraints},
		{"locales", CategoryPreferences},
		{"stack", CategoryTechnical},
		{"sla", CategoryBusiness},
		{"deadlines", CategoryTimeline},
		{"something_else", CategoryOther},
	}
	for _, tt := range tests {
		if got := CategoryForKey(tt.key); got != tt.want {
			t.Errorf("CategoryForKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
