// Package tokensource acquires short-lived access tokens from vendors that
// trade a client id and secret for a bearer token before any API call.
//
// The exchange is a plain OAuth2 client-credentials grant whose parameters
// travel in the query string, the way Baidu's token endpoint expects them:
//
//	POST {tokenURL}?grant_type=client_credentials&client_id=...&client_secret=...
//
// # Caching
//
// A ClientCredentials source caches the token it obtained and reuses it while
// oauth2.Token.Valid reports it usable. Tokens without an expiry are kept for
// the lifetime of the source. Invalidate drops the cached token when the
// vendor rejects it early:
//
//	src := tokensource.NewClientCredentials(httpClient, tokenURL, id, secret)
//	tok, err := src.Token(ctx)
//	...
//	src.Invalidate()
package tokensource
