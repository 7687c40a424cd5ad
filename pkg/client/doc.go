/*
Package client provides a Go client for the shiftkeeper HTTP API.

It is what the shiftkeeper CLI uses to talk to a running daemon. Every method
runs with its own 10 second timeout and returns an *APIError for non-2xx
responses, so callers can branch on IsNotFound and IsConflict.

# Usage

	c, err := client.NewClient("127.0.0.1:8080")
	if err != nil {
		return err
	}
	defer c.Close()

	session, err := c.StartSession(api.StartSessionRequest{UserID: "alice"})
	...
	resp, err := c.EndSession(session.ID, nil)
	fmt.Printf("closed %d attendance rows\n", resp.ClosedAttendances)

Occurrence dates travel as "YYYY-MM-DD" strings in the daemon's timezone.
*/
package client
