package middleware

import (
	"net/http"
	"strings"
)

// RouteClass is the gate's view of a route.
type RouteClass int

const (
	// RouteNeither routes are served to everyone and never redirected.
	RouteNeither RouteClass = iota
	// RoutePublic routes are meant for signed-out visitors (login, register).
	RoutePublic
	// RouteProtected routes require a verified, signed-in user.
	RouteProtected
)

func (c RouteClass) String() string {
	switch c {
	case RoutePublic:
		return "public"
	case RouteProtected:
		return "protected"
	default:
		return "neither"
	}
}

// RouteClassifier decides the class of a request.
type RouteClassifier interface {
	Classify(r *http.Request) RouteClass
}

// ClassifierFunc adapts a function to RouteClassifier.
type ClassifierFunc func(r *http.Request) RouteClass

// Classify calls f(r).
func (f ClassifierFunc) Classify(r *http.Request) RouteClass {
	return f(r)
}

// PrefixClassifier classifies by URL path prefix. Protected prefixes win over
// public ones; a prefix matches the path itself and anything below it.
type PrefixClassifier struct {
	Public    []string
	Protected []string
}

// Classify returns the class of r's path.
func (c PrefixClassifier) Classify(r *http.Request) RouteClass {
	path := r.URL.Path
	for _, p := range c.Protected {
		if matchPrefix(path, p) {
			return RouteProtected
		}
	}
	for _, p := range c.Public {
		if matchPrefix(path, p) {
			return RoutePublic
		}
	}
	return RouteNeither
}

func matchPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return path == "/"
	}
	prefix = strings.TrimRight(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
