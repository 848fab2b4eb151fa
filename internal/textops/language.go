package textops

import "unicode"

type Language struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	EnglishName string `json:"english_name"`
}

var supportedLanguages = []Language{
	{Code: "ar", Name: "العربية", EnglishName: "Arabic"},
	{Code: "en", Name: "English", EnglishName: "English"},
	{Code: "fr", Name: "Français", EnglishName: "French"},
}

// detectLanguage guesses between the supported languages from the script
// and accented letters in text. Anything else is reported as English.
func detectLanguage(text string) string {
	var arabic, letters, french int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r):
			arabic++
			letters++
		case unicode.IsLetter(r):
			letters++
			switch r {
			case 'é', 'è', 'ê', 'à', 'â', 'ç', 'ù', 'û', 'ô', 'î', 'ï', 'ë', 'œ':
				french++
			}
		}
	}
	switch {
	case letters > 0 && arabic*2 >= letters:
		return "ar"
	case french > 0:
		return "fr"
	default:
		return "en"
	}
}
