package extraction

import (
	"regexp"
	"strings"
)

// ответ целиком обёрнут в ```json ... ``` или просто ``` ... ```
var fencePattern = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*\\n?(.*?)\\s*```$")

// stripFences снимает обёртку markdown-блока кода, если ответ ею ограничен
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if m := fencePattern.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return content
}

// extractObject возвращает ответ модели, если после снятия обёртки он
// целиком является JSON-объектом, иначе "". Текст вокруг не допускается,
// содержимое не исправляется: это забота корректирующего повтора.
func extractObject(content string) string {
	return wholeValue(stripFences(content), '{', '}')
}

// extractArray - то же для JSON-массива
func extractArray(content string) string {
	return wholeValue(stripFences(content), '[', ']')
}

func wholeValue(s string, open, close byte) string {
	if len(s) < 2 || s[0] != open || s[len(s)-1] != close {
		return ""
	}
	return s
}
