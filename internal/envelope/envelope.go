// Package envelope splits SMTP addresses into their local and domain
// parts for the root package's Address type.
package envelope

import "strings"

// Split an user@domain address into user and domain.
func Split(addr string) (string, string) {
	ps := strings.SplitN(addr, "@", 2)
	if len(ps) != 2 {
		return addr, ""
	}

	return ps[0], ps[1]
}

// UserOf user@domain returns user.
func UserOf(addr string) string {
	user, _ := Split(addr)
	return user
}

// DomainOf user@domain returns domain.
func DomainOf(addr string) string {
	_, domain := Split(addr)
	return domain
}
