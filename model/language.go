package model

import "strings"

// Language is the runtime language reported by a service instance.
type Language string

// Known languages
const (
	LanguageUnknown Language = "UNKNOWN"
	LanguageJava    Language = "JAVA"
	LanguageDotNet  Language = "DOTNET"
	LanguageNodeJS  Language = "NODEJS"
	LanguagePython  Language = "PYTHON"
	LanguageRuby    Language = "RUBY"
	LanguageGo      Language = "GO"
	LanguageLua     Language = "LUA"
	LanguagePHP     Language = "PHP"
)

// Languages lists the known values in declaration order.
var Languages = []Language{
	LanguageUnknown,
	LanguageJava,
	LanguageDotNet,
	LanguageNodeJS,
	LanguagePython,
	LanguageRuby,
	LanguageGo,
	LanguageLua,
	LanguagePHP,
}

// ParseLanguage matches case-insensitively and never fails: anything
// unrecognized is LanguageUnknown.
func ParseLanguage(s string) Language {
	upper := Language(strings.ToUpper(strings.TrimSpace(s)))
	for _, l := range Languages {
		if l == upper {
			return l
		}
	}
	return LanguageUnknown
}
