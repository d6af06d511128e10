package smtpclient

import "blitiri.com.ar/go/smtpclient/internal/auth"

// Credentials is a re-export of internal/auth.Credentials: it lives in
// the internal package (so internal/session can build Mechanism values
// from it without importing the root package and creating a cycle), but
// callers construct and zero it through this alias.
type Credentials = auth.Credentials

// AuthPreference is the default mechanism selection order: strongest
// (or least likely to leak the password) first. Connect picks the first
// mechanism in this order that the peer's AUTH capability lists, and
// authenticates with that one only.
var AuthPreference = auth.DefaultPreference
