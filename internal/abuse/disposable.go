package abuse

import "strings"

// disposableDomains は使い捨てメールサービスのドメイン。
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"10minutemail.com":  {},
	"temp-mail.org":     {},
	"guerrillamail.com": {},
	"yopmail.com":       {},
	"getnada.com":       {},
	"trashmail.com":     {},
	"tempmail.dev":      {},
}

// IsDisposableEmail はメールアドレスのドメインが使い捨てメールサービスかを返す。
// サブドメインも対象とする。
func IsDisposableEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	for domain != "" {
		if _, ok := disposableDomains[domain]; ok {
			return true
		}
		dot := strings.Index(domain, ".")
		if dot < 0 {
			break
		}
		domain = domain[dot+1:]
	}
	return false
}
