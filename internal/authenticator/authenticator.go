// Package authenticator declares the middleware contract the router expects
// from the authentication layer.
package authenticator

import "net/http"

type Authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
	RegisterNewUser(h http.Handler) http.Handler
}
