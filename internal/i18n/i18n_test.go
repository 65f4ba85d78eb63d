package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "validation.required")
	if got != "This question is required." {
		t.Errorf("T(validation.required) = %q", got)
	}

	got = T(ctx, "temperature.hot")
	if got != "Hot" {
		t.Errorf("T(temperature.hot) = %q, want 'Hot'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "validation.required")
	if got != "Это обязательный вопрос." {
		t.Errorf("T(validation.required) = %q", got)
	}

	got = T(ctx, "temperature.early")
	if got != "Ранняя стадия" {
		t.Errorf("T(temperature.early) = %q, want 'Ранняя стадия'", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "de")

	got := T(ctx, "temperature.warm")
	if got != "Warm" {
		t.Errorf("T(temperature.warm) = %q, want 'Warm'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "1 question left"},
		{"en", 5, "5 questions left"},
		{"ru", 1, "Остался 1 вопрос"},
		{"ru", 3, "Осталось 3 вопроса"},
		{"ru", 5, "Осталось 5 вопросов"},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		got := Tp(ctx, "questions_remaining", tt.count)
		if got != tt.want {
			t.Errorf("Tp(%s, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "validation.max", map[string]any{"Max": "10"})
	if got != "Must be at most 10." {
		t.Errorf("Td(validation.max, Max=10) = %q, want 'Must be at most 10.'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}

	got = Localize(ctx, "NonExistentKey", nil, "fallback text")
	if got != "fallback text" {
		t.Errorf("Localize fallback = %q", got)
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "temperature.hot")
	}))

	tests := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{"default", "/", "", "Hot"},
		{"accept-language", "/", "ru-RU,ru;q=0.9,en;q=0.8", "Горячий"},
		{"query wins", "/?lang=en", "ru", "Hot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				req.Header.Set("Accept-Language", tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLanguages(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	langs := Languages()
	if len(langs) != 2 {
		t.Errorf("expected en and ru, got %v", langs)
	}
}
