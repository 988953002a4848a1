package flagdeck

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// User describes the object the evaluator identifies a caller with.
// Implementations must be safe for concurrent use.
type User interface {
	// GetIdentifier returns the unique identifier of the user.
	GetIdentifier() string
	// GetAttribute returns the named attribute of the user, or the
	// empty string when the attribute is not present.
	GetAttribute(key string) string
}

// UserData is the built-in User implementation. Attribute lookup is
// case-insensitive.
type UserData struct {
	identifier string
	attributes map[string]string
}

// NewUser creates a new user object. The identifier argument is mandatory.
func NewUser(identifier string) *UserData {
	return NewUserWithAdditionalAttributes(identifier, "", "", nil)
}

// NewUserWithAdditionalAttributes creates a new user object with
// additional attributes. The identifier argument is mandatory.
func NewUserWithAdditionalAttributes(identifier string, email string, country string, custom map[string]string) *UserData {
	user := &UserData{identifier: identifier, attributes: map[string]string{}}
	user.attributes["identifier"] = identifier
	if email != "" {
		user.attributes["email"] = email
	}
	if country != "" {
		user.attributes["country"] = country
	}
	for k, v := range custom {
		user.attributes[strings.ToLower(k)] = v
	}
	return user
}

// GetIdentifier implements the User interface.
func (user *UserData) GetIdentifier() string {
	return user.identifier
}

// GetAttribute implements the User interface.
func (user *UserData) GetAttribute(key string) string {
	return user.attributes[strings.ToLower(key)]
}

func (user *UserData) String() string {
	keys := make([]string, 0, len(user.attributes))
	for k := range user.attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", k, user.attributes[k])
	}
	b.WriteByte('}')
	return b.String()
}

// isInvalidUser reports whether a non-nil User interface wraps a nil
// concrete value. Such users cannot answer attribute lookups and are
// treated as missing by the evaluator.
func isInvalidUser(user User) bool {
	if user == nil {
		return false
	}
	v := reflect.ValueOf(user)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}
