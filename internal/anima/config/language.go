package config

import "strings"

var languageNames = map[string]string{}

func init() {
	for name, aliases := range map[string][]string{
		"Español":                       {"ES", "ESPAÑOL"},
		"English":                       {"EN", "INGLÉS", "INGLES", "ENGLISH"},
		"中文 (Chinese)":                  {"CH", "ZH", "CHINO", "中文"},
		"العربية (Arabic)":              {"AR", "ÁRABE", "ARABE", "العربية"},
		"Русский (Russian)":             {"RU", "RUSO", "РУССКИЙ"},
		"日本語 (Japanese)":                {"JP", "JA", "JAPONÉS", "JAPONES", "日本語"},
		"Deutsch (German)":              {"DE", "ALEMÁN", "ALEMAN", "DEUTSCH"},
		"Français (French)":             {"FR", "FRANCÉS", "FRANCES", "FRANÇAIS"},
		"Português (Portuguese)":        {"PT", "PORTUGUÉS", "PORTUGUES", "PORTUGUÊS"},
		"हिन्दी (Hindi)":                {"HI", "हिन्दी", "HINDI"},
		"বাংলা (Bengali)":               {"BN", "বাংলা", "BENGALI"},
		"اردو (Urdu)":                   {"UR", "اردو", "URDU"},
		"Bahasa Indonesia (Indonesian)": {"ID", "BAHASA INDONESIA", "INDONESIAN"},
		"한국어 (Korean)":                  {"KO", "KOREAN", "한국어"},
		"Tiếng Việt (Vietnamese)":       {"VI", "VIETNAMESE", "TIẾNG VIỆT", "TIENG VIET"},
		"Italiano (Italian)":            {"IT", "ITALIAN", "ITALIANO"},
		"Türkçe (Turkish)":              {"TR", "TURKISH", "TÜRKÇE", "TURKCE"},
		"தமிழ் (Tamil)":                 {"TA", "TAMIL", "தமிழ்"},
		"ไทย (Thai)":                    {"TH", "THAI", "ไทย"},
		"Polski (Polish)":               {"PL", "POLISH", "POLSKI"},
	} {
		for _, alias := range aliases {
			languageNames[alias] = name
		}
	}
}

// LanguageName maps a language code or name ("en", "Inglés", "日本語") to
// the display name used in prompts. Unknown input is returned trimmed and
// upper-cased.
func LanguageName(codeOrName string) string {
	key := strings.ToUpper(strings.TrimSpace(codeOrName))
	if name, ok := languageNames[key]; ok {
		return name
	}
	return key
}
