// Package kiteconnect implements the Kite Connect login handshake.
//
// A login on kite.zerodha.com redirects the browser to the app's registered
// callback URL with a short-lived request_token. The token is exchanged for
// an access token by posting it to /session/token together with a checksum:
//
//	checksum = hex(sha256(api_key + request_token + api_secret))
//
// The concatenation has no separators and its order is fixed by Kite.
//
// # Usage
//
//	client := kiteconnect.NewClient(apiKey, apiSecret)
//	fmt.Println(client.LoginURL(nil))
//	requestToken, err := kiteconnect.ExtractRequestToken(pasted)
//	session, err := client.GenerateSession(ctx, requestToken)
//
// Subsequent API calls authenticate with "Authorization: token
// api_key:access_token". Session.Token returns an oauth2.Token carrying that
// scheme so it can be used with oauth2.Transport.
package kiteconnect
