/*
Package clients provides an HTTP client for the safesync server.

	client := clients.NewSafesyncClient("http://127.0.0.1:8080", 30*time.Second)

	document, resp, err := client.Pull("personal.db")
	if resp.FromCache {
	    // the server's storage provider was offline
	}

Non-2xx responses are returned as *StatusError. MockSafesyncProvider is a
testify mock of api.SafesyncProvider for code that depends on the client.
*/
package clients
