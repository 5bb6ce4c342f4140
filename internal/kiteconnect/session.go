package kiteconnect

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// tokenType is the Authorization scheme Kite Connect expects.
const tokenType = "token"

// loginTimeLayout is the format of login_time, expressed in IST.
const loginTimeLayout = "2006-01-02 15:04:05"

// ist is India Standard Time, the zone Kite reports times in.
var ist = time.FixedZone("IST", 5*60*60+30*60)

// Session is the data returned by a successful token exchange.
type Session struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Email       string `json:"email"`
	Broker      string `json:"broker"`
	AccessToken string `json:"access_token"`
	PublicToken string `json:"public_token"`
	LoginTime   string `json:"login_time"`
}

func (s *Session) check() error {
	if s.AccessToken == "" {
		return errors.New("response has no access_token")
	}
	return nil
}

// Profile is the user profile returned by /user/profile.
type Profile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	Broker    string   `json:"broker"`
	UserType  string   `json:"user_type"`
	Exchanges []string `json:"exchanges"`
}

// Expiry returns when the access token stops working: Kite invalidates all
// access tokens at 06:00 IST the morning after login. Zero if login_time
// cannot be parsed.
func (s *Session) Expiry() time.Time {
	login, err := time.ParseInLocation(loginTimeLayout, s.LoginTime, ist)
	if err != nil {
		return time.Time{}
	}

	expiry := time.Date(login.Year(), login.Month(), login.Day(), 6, 0, 0, 0, ist)
	if !expiry.After(login) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}

// authToken builds the token sent as "Authorization: token api_key:access_token".
func authToken(apiKey, accessToken string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken: apiKey + ":" + accessToken,
		TokenType:   tokenType,
	}
}
