// redact маскирует чувствительные данные перед записью в лог:
// пароли в строках подключения и адреса e-mail.
package redact

import (
	"net/url"
	"strings"
)

// Email маскирует e-mail: от локальной части остаются первые две руны.
// Строка без ровно одного '@' заменяется на "***".
//
//	"ops.team@example.org" -> "op***@example.org"
//	"ab@ex.com"            -> "***@ex.com"
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Subject маскирует идентификатор администратора, если это e-mail.
func Subject(s string) string {
	if strings.Contains(s, "@") {
		return Email(s)
	}
	return s
}

// URL убирает пароль из строки подключения (postgres://, redis://, mongodb://).
// Путь к файлу и строки без схемы возвращаются как есть.
// Нераспознаваемый URL со схемой заменяется на "***".
func URL(raw string) string {
	if !strings.Contains(raw, "://") {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}

	return u.String()
}
