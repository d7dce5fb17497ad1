package auth

import (
	"strings"

	"github.com/psds-microservice/workshop-service/internal/model"
)

// Домены синтетических email: <slug>@<domain>.
var roleDomains = map[model.Role]string{
	model.RoleAdmin:    "admin.local",
	model.RoleMechanic: "mechanics.local",
	model.RoleGuide:    "guides.local",
}

// Страницы входа по ролям (login_url в ответе 401).
var loginPaths = map[model.Role]string{
	model.RoleAdmin:    "/login/admin",
	model.RoleMechanic: "/login/mechanic",
	model.RoleGuide:    "/login/guide",
}

func Email(role model.Role, slug string) string {
	d, ok := roleDomains[role]
	if !ok {
		return ""
	}
	return strings.ToLower(slug) + "@" + d
}

// ParseEmail разбирает синтетический email на роль и slug.
func ParseEmail(email string) (model.Role, string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", "", false
	}
	slug, domain := email[:at], email[at+1:]
	for r, d := range roleDomains {
		if d == domain {
			return r, slug, true
		}
	}
	return "", "", false
}

// NormalizeSlug: "Ivan Petrov" -> "ivan-petrov".
func NormalizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), "-")
}

// LoginPath — страница входа для роли; без роли общая.
func LoginPath(role model.Role) string {
	if p, ok := loginPaths[role]; ok {
		return p
	}
	return "/login"
}
