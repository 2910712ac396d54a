// redact — помощники для безопасного логирования чувствительных значений.
// Секреты и хэши токенов в логи не попадают ни при каком уровне.
package redact

import "strings"

// Email маскирует локальную часть адреса, оставляя домен.
func Email(s string) string {
	parts := strings.Split(s, "@")
	if len(parts) != 2 {
		return "***"
	}

	local, domain := parts[0], parts[1]
	if len(local) > 2 {
		local = local[:2] + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

func Token() string { return "[REDACTED_TOKEN]" }
