/*
Package authsdk is the Go client for the ESLAdmin authentication endpoints.

SDKClient covers the calls that take explicit tokens:

	client := authsdk.NewSDKClient("https://admin.example.com")

	pair, err := client.Login(ctx, "a@x.com", "Secret1", "")
	next, err := client.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	err = client.Logout(ctx, next.AccessToken)

Session wraps a pair and refreshes the access token shortly before it
expires. Refresh tokens are single use, so a Session serialises refreshes:

	session, err := client.AuthenticateWithPassword(ctx, email, password, "")
	me, err := session.Me(ctx)

Failed calls return *APIError. Compare with errors.Is against the exported
values:

	if errors.Is(err, authsdk.ErrTokenRevoked) {
		// log in again
	}
*/
package authsdk
