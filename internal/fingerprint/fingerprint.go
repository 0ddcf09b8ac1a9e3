// fingerprint вычисляет два сигнала идентичности элемента:
// нормализованный ключ (по ссылке) и отпечаток содержимого (по заголовку и тексту).
//
// Обе функции чистые и никогда не возвращают ошибку.
package fingerprint

import (
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// trackingParams - параметры запроса, которые не влияют на идентичность ссылки.
var trackingParams = map[string]struct{}{
	"gclid":    {},
	"fbclid":   {},
	"ref":      {},
	"source":   {},
	"campaign": {},
	"igshid":   {},
}

func isTracking(key string) bool {
	if _, ok := trackingParams[key]; ok {
		return true
	}

	return strings.HasPrefix(key, "utm_") || strings.HasPrefix(key, "mc_") || strings.HasSuffix(key, "clid")
}

// NormalizeIdentity приводит ссылку к каноническому виду:
//   - нижний регистр;
//   - без фрагмента и трекинговых параметров;
//   - оставшиеся параметры в отсортированном порядке;
//   - без завершающего "/".
//
// Если ссылку не удаётся разобрать, возвращается обрезанная строка в нижнем регистре.
func NormalizeIdentity(raw string) string {
	str := strings.ToLower(strings.TrimSpace(raw))
	if str == "" {
		return ""
	}

	u, err := url.Parse(str)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return str
	}

	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return str
	}

	for k := range q {
		if isTracking(k) {
			q.Del(k)
		}
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))

	// Encode сортирует ключи.
	if enc := q.Encode(); enc != "" {
		b.WriteByte('?')
		b.WriteString(enc)
	}

	return b.String()
}

// Content возвращает отпечаток содержимого: BLAKE2b-256 в hex (64 символа)
// от нормализованных заголовка и текста.
//
// Если после нормализации оба поля пусты, возвращается "" - такой отпечаток
// ни с чем не совпадает.
func Content(title, body string) string {
	t := normalizeText(title)
	b := normalizeText(body)

	if t == "" && b == "" {
		return ""
	}

	sum := blake2b.Sum256([]byte(t + "|" + b))
	return hex.EncodeToString(sum[:])
}

// normalizeText - NFKC, нижний регистр, схлопывание пробелов.
func normalizeText(s string) string {
	s = norm.NFKC.String(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
